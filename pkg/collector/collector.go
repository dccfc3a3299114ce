// Package collector reads flow events from files and derives ground-truth
// training labels from dataset-specific columns.
package collector

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shieldx-cti/pkg/event"
	"shieldx-cti/pkg/structlog"
)

// ErrSourceNotFound is returned when the configured path does not exist.
var ErrSourceNotFound = errors.New("log source not found")

// Options bounds a collection run.
type Options struct {
	// Max caps the number of events returned; 0 means unlimited.
	Max int
	// Shuffle randomises event order with Seed before capping.
	Shuffle bool
	Seed    int64
}

// FileSource reads events from a file or a directory tree of .json,
// .jsonl and .csv files.
type FileSource struct {
	path   string
	logger *structlog.Logger
}

// NewFileSource returns a source rooted at path.
func NewFileSource(path string, logger *structlog.Logger) *FileSource {
	if logger == nil {
		logger = structlog.Nop()
	}
	return &FileSource{path: path, logger: logger}
}

// Collect reads events according to opts.
func (s *FileSource) Collect(ctx context.Context, opts Options) ([]event.Event, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}
	var all []event.Event
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !opts.Shuffle && opts.Max > 0 && len(all) >= opts.Max {
			break
		}
		events, err := ReadFile(f)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("read event file", structlog.Fields{"file": f, "events": len(events)})
		all = append(all, events...)
	}
	if opts.Shuffle {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	}
	if opts.Max > 0 && len(all) > opts.Max {
		all = all[:opts.Max]
	}
	return all, nil
}

func (s *FileSource) files() ([]string, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, s.path)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{s.path}, nil
	}
	var files []string
	err = filepath.WalkDir(s.path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && supported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func supported(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".csv", ".json", ".jsonl", ".ndjson":
		return true
	}
	return false
}

// ReadFile decodes one file by extension.
func ReadFile(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []event.Event
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		events, err = ReadCSV(f)
	} else {
		events, err = ReadJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return events, nil
}

// ReadJSON accepts either a JSON array of objects or one object per line.
func ReadJSON(r io.Reader) ([]event.Event, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if first == '[' {
		var events []event.Event
		if err := json.NewDecoder(br).Decode(&events); err != nil {
			return nil, err
		}
		return compact(events), nil
	}

	var events []event.Event
	dec := json.NewDecoder(br)
	for {
		var ev event.Event
		err := dec.Decode(&ev)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", len(events)+1, err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func compact(events []event.Event) []event.Event {
	out := events[:0]
	for _, ev := range events {
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

// ReadCSV maps each row onto an event keyed by header. Empty cells are
// left out so that aliases further down the priority list can match.
func ReadCSV(r io.Reader) ([]event.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	header = append([]string(nil), header...)
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var events []event.Event
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		ev := make(event.Event, len(header))
		for i, cell := range row {
			if i >= len(header) || strings.TrimSpace(cell) == "" {
				continue
			}
			ev[header[i]] = cell
		}
		events = append(events, ev)
	}
	return events, nil
}

// Package artifact persists trained model blobs. Every backend stores a
// SHA3-256 digest alongside the payload and verifies it on load, and every
// Save replaces the previous blob atomically.
package artifact

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"
)

var (
	// ErrNotFound is returned by Load when no artifact exists under the name.
	ErrNotFound = errors.New("artifact not found")
	// ErrCorrupt is returned by Load when the stored digest does not match.
	ErrCorrupt = errors.New("artifact digest mismatch")
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("artifact store misconfigured")
)

// ConfigurationError reports an artifact location that cannot be written.
type ConfigurationError struct {
	Location string
	Err      error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("artifact location %s unusable: %v", e.Location, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// Store holds one opaque blob per name.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

// Digest returns the hex SHA3-256 of data.
func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// encode prefixes data with its digest line.
func encode(data []byte) []byte {
	d := Digest(data)
	out := make([]byte, 0, len(d)+1+len(data))
	out = append(out, d...)
	out = append(out, '\n')
	return append(out, data...)
}

// decode splits and verifies an encoded blob.
func decode(blob []byte) ([]byte, error) {
	i := bytes.IndexByte(blob, '\n')
	if i < 0 {
		return nil, fmt.Errorf("%w: missing digest header", ErrCorrupt)
	}
	want, data := string(blob[:i]), blob[i+1:]
	if got := Digest(data); got != want {
		return nil, fmt.Errorf("%w: want %.12s got %.12s", ErrCorrupt, want, got)
	}
	return data, nil
}

package collector

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldx-cti/pkg/event"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestReadJSON_ArrayAndLines(t *testing.T) {
	arr, err := ReadJSON(strings.NewReader(` [{"src_ip":"1.1.1.1","sbytes":10}, null, {"dst_port":443}]`))
	require.NoError(t, err)
	require.Len(t, arr, 2)
	assert.Equal(t, "1.1.1.1", arr[0].SrcIP(""))
	assert.Equal(t, "443", arr[1].DstPort(""))

	lines, err := ReadJSON(strings.NewReader("{\"a\":1}\n\n{\"b\":2}\n"))
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	empty, err := ReadJSON(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ReadJSON(strings.NewReader(`{"a":1}{"b":`))
	assert.Error(t, err)
}

func TestReadCSV_SkipsEmptyCells(t *testing.T) {
	body := "\ufeffsrcip,dsport,sttl,attack_cat, Label\n" +
		"175.45.176.1,4444,254,Exploits,\n" +
		"10.0.0.1,80,,, BENIGN\n"
	events, err := ReadCSV(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "175.45.176.1", events[0].SrcIP(""))
	assert.Equal(t, 254.0, events[0].Float("sttl"))
	_, hasSttl := events[1]["sttl"]
	assert.False(t, hasSttl)
	_, hasCat := events[1]["attack_cat"]
	assert.False(t, hasCat)
}

func TestFileSource_DirectoryWalk(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"id":"a1"},{"id":"a2"}]`)
	writeFile(t, dir, "nested/b.csv", "id,rate\nb1,5\n")
	writeFile(t, dir, "nested/c.jsonl", "{\"id\":\"c1\"}\n")
	writeFile(t, dir, "notes.txt", "ignored")

	events, err := NewFileSource(dir, nil).Collect(context.Background(), Options{})
	require.NoError(t, err)
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID()
	}
	assert.Equal(t, []string{"a1", "a2", "b1", "c1"}, ids)

	capped, err := NewFileSource(dir, nil).Collect(context.Background(), Options{Max: 3})
	require.NoError(t, err)
	assert.Len(t, capped, 3)
}

func TestFileSource_ShuffleIsSeeded(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("id\n")
	for i := 0; i < 50; i++ {
		sb.WriteString(strings.Repeat("x", i+1) + "\n")
	}
	writeFile(t, dir, "flows.csv", sb.String())

	src := NewFileSource(dir, nil)
	a, err := src.Collect(context.Background(), Options{Shuffle: true, Seed: 42, Max: 10})
	require.NoError(t, err)
	b, err := src.Collect(context.Background(), Options{Shuffle: true, Seed: 42, Max: 10})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 10)
}

func TestFileSource_Missing(t *testing.T) {
	_, err := NewFileSource(filepath.Join(t.TempDir(), "nope"), nil).Collect(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestFileSource_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[{"id":"a1"}]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFileSource(dir, nil).Collect(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLabel(t *testing.T) {
	cases := []struct {
		name string
		ev   event.Event
		want string
	}{
		{"attack type column", event.Event{"Attack Type": "DDoS"}, "DDoS"},
		{"blank attack type", event.Event{"Attack Type": "  "}, "Normal"},
		{"unsw category", event.Event{"attack_cat": "Exploits", "action": "DROP"}, "Exploits"},
		{"unsw blank category", event.Event{"attack_cat": ""}, "Normal"},
		{"cicids benign", event.Event{" Label": "BENIGN"}, "Normal"},
		{"cicids attack verbatim", event.Event{"Label": "DoS Hulk "}, "DoS Hulk"},
		{"firewall deny", event.Event{"action": "deny"}, "Malware"},
		{"backdoor port", event.Event{"dst_port": float64(4444)}, "Malware"},
		{"backdoor port alias", event.Event{"dsport": "6667"}, "Malware"},
		{"telnet", event.Event{"Destination Port": 23}, "Malware"},
		{"plain", event.Event{"dst_port": 443, "action": "ALLOW"}, "Normal"},
		{"empty", event.Event{}, "Normal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Label(tc.ev))
		})
	}
}

package snapshot

import (
	"errors"
	"os"
	"testing"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		records []Record
	}{
		{"no sessions", nil},
		{"session with empty queue", []Record{
			{Guild: 1, Channel: 2},
		}},
		{"two sessions with queues", []Record{
			{Guild: 1, Channel: 2, Queue: []track.Source{
				track.Resolve("https://example.com/a"),
				track.Search("some song"),
			}},
			{Guild: 3, Channel: 4, Queue: []track.Source{
				track.File("/music/b.mp3"),
			}},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Encode(tc.records)
			require.NoError(t, err)
			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tc.records, decoded)
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"truncated", `[{"guild":1,`},
		{"wrong shape", `{"guild":1}`},
		{"wrong types", `[{"guild":"one"}]`},
		{"empty", ``},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadFormat), "got %v", err)
		})
	}
}

func TestWriteThenReadDeletesFile(t *testing.T) {
	records := []Record{
		{Guild: 7, Channel: 8, Queue: []track.Source{track.Resolve("x")}},
	}

	path, err := Write(records)
	require.NoError(t, err)

	decoded, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, records, decoded)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "transfer file should be deleted after read")

	_, err = Read(path)
	assert.Error(t, err, "second read must not find the file")
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read("/nonexistent/transfer.json")
	require.Error(t, err)
}

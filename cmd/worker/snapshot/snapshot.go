package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lyrebird-bot/lyrebird/cmd/worker/track"
)

// ErrBadFormat marks a transfer file that failed to decode. Callers treat it
// as "no recovery available", never as a fatal condition.
var ErrBadFormat = errors.New("malformed transfer file")

// Record is the minimal replay state of one session: where it was connected
// and what it still had queued. Metadata caches are intentionally dropped.
type Record struct {
	Guild   uint64         `json:"guild"`
	Channel uint64         `json:"channel"`
	Queue   []track.Source `json:"queue"`
}

// Encode serializes records to the transfer-file format.
func Encode(records []Record) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a transfer file's contents.
func Decode(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFormat, err)
	}
	return records, nil
}

// Write stores records in a fresh transfer file and returns its path.
func Write(records []Record) (string, error) {
	data, err := Encode(records)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "lyrebird-restart-*.json")
	if err != nil {
		return "", fmt.Errorf("failed to create transfer file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write transfer file: %w", err)
	}
	return f.Name(), nil
}

// Read loads a transfer file and deletes it immediately after reading, so a
// snapshot is replayed at most once. A crash between read and delete costs
// the snapshot, never corrupts it.
func Read(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transfer file: %w", err)
	}
	_ = os.Remove(path)
	return Decode(data)
}

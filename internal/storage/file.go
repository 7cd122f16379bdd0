package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// File keeps each bucket as one JSON object in <dir>/<bucket>.json.
// Writes go to a temp file first and are renamed into place.
type File struct {
	mu     sync.Mutex
	dir    string
	closed bool
}

// NewFile creates the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(bucket string) string {
	return filepath.Join(f.dir, bucket+".json")
}

func (f *File) readLocked(bucket string) (map[string]jsoniter.RawMessage, error) {
	records := make(map[string]jsoniter.RawMessage)
	data, err := os.ReadFile(f.path(bucket))
	if errors.Is(err, fs.ErrNotExist) {
		return records, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.path(bucket), err)
	}
	return records, nil
}

func (f *File) writeLocked(bucket string, records map[string]jsoniter.RawMessage) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, bucket+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(bucket))
}

// Load returns every record of a bucket.
func (f *File) Load(ctx context.Context, bucket string) (map[string][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}

	records, err := f.readLocked(bucket)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(records))
	for id, raw := range records {
		out[id] = []byte(raw)
	}
	return out, nil
}

// Put creates or replaces one record. value must be valid JSON.
func (f *File) Put(ctx context.Context, bucket, id string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("record %s/%s is not valid JSON", bucket, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	records, err := f.readLocked(bucket)
	if err != nil {
		return err
	}
	records[id] = jsoniter.RawMessage(value)
	return f.writeLocked(bucket, records)
}

// Delete removes one record.
func (f *File) Delete(ctx context.Context, bucket, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	records, err := f.readLocked(bucket)
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)
	return f.writeLocked(bucket, records)
}

// Clear removes the bucket file.
func (f *File) Clear(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	err := os.Remove(f.path(bucket))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Close marks the backend closed.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

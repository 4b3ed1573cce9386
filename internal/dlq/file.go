package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileQueue appends failed events as NDJSON to one file per day under a
// base directory. Not safe for multiple collector instances sharing a path.
type FileQueue struct {
	basePath string

	mu      sync.Mutex
	file    *os.File
	curName string
}

// NewFileQueue creates the base directory if needed.
func NewFileQueue(basePath string) (*FileQueue, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &FileQueue{basePath: basePath}, nil
}

// Write appends one failed event. The target file rolls over daily.
func (q *FileQueue) Write(_ context.Context, payload any, cause error, reason string) error {
	entry := FailedEvent{
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Error:     cause.Error(),
		Reason:    reason,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	name := filepath.Join(q.basePath, entry.Timestamp.Format("2006-01-02")+".ndjson")
	if q.file == nil || q.curName != name {
		if q.file != nil {
			q.file.Close()
		}
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open dlq file: %w", err)
		}
		q.file = f
		q.curName = name
	}

	if _, err := q.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}
	return nil
}

// Close closes the current file, if any.
func (q *FileQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.file == nil {
		return nil
	}
	err := q.file.Close()
	q.file = nil
	return err
}

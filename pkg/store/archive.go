package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
)

// Archiver receives batches of audit logs before retention cleanup deletes
// them
type Archiver interface {
	Archive(ctx context.Context, logs []*audit.Log) error
}

// FileArchiver appends archived logs to newline-delimited JSON files, one
// file per cleanup run day.
type FileArchiver struct {
	basePath string
	mu       sync.Mutex
	now      func() time.Time
}

// NewFileArchiver creates a file-based archiver rooted at basePath
func NewFileArchiver(basePath string) (*FileArchiver, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &FileArchiver{
		basePath: basePath,
		now:      time.Now,
	}, nil
}

// Archive appends the batch to the current day's archive file
func (a *FileArchiver) Archive(ctx context.Context, logs []*audit.Log) error {
	if len(logs) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	filename := filepath.Join(a.basePath,
		fmt.Sprintf("audit-archive-%s.ndjson", a.now().UTC().Format("2006-01-02")))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open archive file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	for _, log := range logs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := encoder.Encode(log); err != nil {
			return fmt.Errorf("failed to encode archived log: %w", err)
		}
	}

	return file.Sync()
}

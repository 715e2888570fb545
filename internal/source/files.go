package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"keyword_relay/internal/unmatched"
)

const (
	// RuleFileExt is the extension of rule files, <table>.csv.
	RuleFileExt = ".csv"
	// LogFileExt is the extension of unmatched log files, <table>.unmatched.csv.
	LogFileExt = ".unmatched.csv"
)

// ErrBadTableID is returned for table ids that are not plain file names.
var ErrBadTableID = errors.New("invalid table id")

// Files reads rule tables from CSV files in a directory. The first line of
// each file is the header, like the first row of a sheet.
type Files struct {
	dir string
	mu  sync.Mutex // serializes log appends
}

func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

func (f *Files) Dir() string {
	return f.dir
}

func (f *Files) path(tableID, ext string) (string, error) {
	if tableID == "" || strings.ContainsAny(tableID, `/\.`) {
		return "", fmt.Errorf("%w: %q", ErrBadTableID, tableID)
	}
	return filepath.Join(f.dir, tableID+ext), nil
}

func (f *Files) FetchRows(ctx context.Context, tableID string) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := f.path(tableID, RuleFileExt)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	return rows, nil
}

func (f *Files) AppendEntry(ctx context.Context, e unmatched.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := f.path(e.TableID, LogFileExt)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(e.Row()); err != nil {
		file.Close()
		return fmt.Errorf("failed to write log row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write log row: %w", err)
	}
	return file.Close()
}

package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RunRecord captures one ingest run for audit and analysis.
type RunRecord struct {
	Timestamp    time.Time              `json:"timestamp"`
	RunID        string                 `json:"run_id"`
	Market       string                 `json:"market"`
	Metric       string                 `json:"metric,omitempty"`
	Tickers      []string               `json:"tickers,omitempty"`
	Rows         int                    `json:"rows"`
	Sequence     int                    `json:"sequence"`
	ElapsedMS    int64                  `json:"elapsed_ms"`
	Success      bool                   `json:"success"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// Writer appends run records to per-day JSON-lines files.
type Writer struct {
	dir   string
	mu    sync.Mutex
	seq   int
	nowFn func() time.Time
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// WriteRun appends a record to the journal file for the record's day.
func (w *Writer) WriteRun(rec *RunRecord) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("journal: nil record")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = w.nowFn()
	}
	w.seq++
	rec.Sequence = w.seq

	name := fmt.Sprintf("ingest_%s.jsonl", rec.Timestamp.UTC().Format("20060102"))
	path := filepath.Join(w.dir, name)
	data, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

// ReadRuns loads every record journalled under dir in write order. A
// missing directory yields no records.
func ReadRuns(dir string) ([]RunRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: read %s: %w", dir, err)
	}
	var records []RunRecord
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "ingest_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		batch, err := readRunFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

func readRunFile(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("journal: decode %s: %w", filepath.Base(path), err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

package audit

import (
	"encoding/csv"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// UnknownCustomer is recorded when an action has no authenticated customer.
const UnknownCustomer = "Unbekannt"

// Entry is one row of the action log.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Customer  string `json:"customer"`
	Action    string `json:"action"`
}

// Logger appends actions to a comma-separated log file. Failures to write are
// reported on the process log and never fail the calling operation.
type Logger struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// New creates a Logger writing to path.
func New(path string) *Logger {
	return &Logger{path: path, now: time.Now}
}

// Log appends one action row (timestamp, customer, action).
func (l *Logger) Log(customer, action string) {
	if customer == "" {
		customer = UnknownCustomer
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		log.Printf("audit: unable to create log directory: %v", err)
		return
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("audit: unable to open log file: %v", err)
		return
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{l.now().Format("2006-01-02 15:04:05"), customer, action}); err != nil {
		log.Printf("audit: unable to write log entry: %v", err)
		return
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Printf("audit: unable to flush log entry: %v", err)
	}
}

// Entries reads the log back, optionally filtered by a case-insensitive
// substring match on the action column. A missing file yields no entries.
func (l *Logger) Entries(actionFilter string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		if actionFilter != "" && !strings.Contains(strings.ToLower(record[2]), strings.ToLower(actionFilter)) {
			continue
		}
		entries = append(entries, Entry{Timestamp: record[0], Customer: record[1], Action: record[2]})
	}
	return entries, nil
}

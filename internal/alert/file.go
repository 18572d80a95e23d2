package alert

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/driftline-systems/driftline/pkg/types"
)

// fileRecord is the flattened JSON-lines form an alert is persisted as.
type fileRecord struct {
	Level    types.AlertLevel `json:"level"`
	Tenant   string           `json:"tenant,omitempty"`
	Platform string           `json:"platform,omitempty"`
	Subject  string           `json:"subject,omitempty"`
	Message  string           `json:"message"`
	At       string           `json:"at"`
}

// FileSink appends alerts as JSON lines to a file. The file handle stays
// open for the process lifetime; writes are serialized.
type FileSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewFileSink opens (or creates) the alert file for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening alert file: %w", err)
	}
	return &FileSink{enc: json.NewEncoder(f)}, nil
}

// Name returns the sink identifier.
func (s *FileSink) Name() string { return "file" }

// Send appends one JSON line.
func (s *FileSink) Send(alert types.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(fileRecord{
		Level:    alert.Level,
		Tenant:   alert.TenantID,
		Platform: alert.Platform,
		Subject:  alert.Subject,
		Message:  alert.Message,
		At:       alert.Timestamp.UTC().Format(time.RFC3339),
	})
}

package conversation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pearl-assistant/pearl/internal/schema"
)

// NarrativeLog is the human-readable append-only sink that receives one line
// per finished session. Its storage format is outside the coordination
// layer's contract; the file implementation below is the default.
type NarrativeLog interface {
	Append(channel schema.Channel, text string) error
}

// FileNarrativeLog appends timestamped entries to narrative.log under dir.
type FileNarrativeLog struct {
	path string
	now  func() time.Time
}

// NewFileNarrativeLog creates the log under dir, creating dir if necessary.
func NewFileNarrativeLog(dir string) (*FileNarrativeLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create narrative dir: %w", err)
	}
	return &FileNarrativeLog{
		path: filepath.Join(dir, "narrative.log"),
		now:  time.Now,
	}, nil
}

// Append writes one "[timestamp] [channel] text" line, grep-friendly.
func (l *FileNarrativeLog) Append(channel schema.Channel, text string) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open narrative log: %w", err)
	}
	defer f.Close()

	line := strings.TrimRight(text, " \t\r\n")
	ts := l.now().UTC().Format("2006-01-02 15:04")
	if _, err := fmt.Fprintf(f, "[%s] [%s] %s\n", ts, channel, line); err != nil {
		return fmt.Errorf("append narrative log: %w", err)
	}
	return nil
}

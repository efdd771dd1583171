package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MediaSink receives raw media flushed by a session. Implementations must
// tolerate being called from multiple session goroutines.
type MediaSink interface {
	// SaveUtterance persists one flushed audio utterance.
	SaveUtterance(sessionID string, audio []byte) error
	// SaveFrame persists one decoded video frame.
	SaveFrame(sessionID string, frame []byte) error
}

// FileSink writes media to timestamped files under a base directory, one
// subdirectory per session.
type FileSink struct {
	dir string
}

// NewFileSink creates a FileSink rooted at dir, creating it if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// SaveUtterance writes audio as voice_<timestamp>.pcm under the session dir.
func (f *FileSink) SaveUtterance(sessionID string, audio []byte) error {
	return f.write(sessionID, "voice", "pcm", audio)
}

// SaveFrame writes frame as face_<timestamp>.jpg under the session dir.
func (f *FileSink) SaveFrame(sessionID string, frame []byte) error {
	return f.write(sessionID, "face", "jpg", frame)
}

func (f *FileSink) write(sessionID, prefix, ext string, data []byte) error {
	dir := filepath.Join(f.dir, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating session media dir: %w", err)
	}
	name := fmt.Sprintf("%s_%d.%s", prefix, time.Now().UnixNano(), ext)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("writing %s media: %w", prefix, err)
	}
	return nil
}

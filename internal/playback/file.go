package playback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dgnsrekt/ttsclient/internal/audio"
	"github.com/dgnsrekt/ttsclient/internal/wav"
)

// FileSink writes each clip as a 16-bit WAV file named by a UUID.
type FileSink struct {
	dir string

	mu   sync.Mutex
	last string
}

// NewFileSink creates the output directory if needed.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (s *FileSink) Name() string { return SinkFile }

func (s *FileSink) Play(ctx context.Context, buf *audio.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, uuid.New().String()+".wav")
	if err := WriteWAV(path, buf); err != nil {
		return err
	}

	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
	return nil
}

// LastPath returns the most recently written file.
func (s *FileSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// WriteWAV stores buf at path as 16-bit PCM.
func WriteWAV(path string, buf *audio.Buffer) error {
	data := wav.WrapRawPCM(buf.PCM16(), buf.SampleRate, buf.Channels, 16)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write clip: %w", err)
	}
	return nil
}

package playback

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/ttsclient/internal/audio"
	"github.com/dgnsrekt/ttsclient/internal/wav"
)

// testLogger returns a logger that captures output for assertions.
func testLogger() (*slog.Logger, *bytes.Buffer) {
	var out bytes.Buffer
	return slog.New(slog.NewTextHandler(&out, nil)), &out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClip() *audio.Buffer {
	return &audio.Buffer{Samples: []float32{0, 0.5, -0.5, 0.25}, SampleRate: 24000, Channels: 1}
}

// mockSink records played buffers.
type mockSink struct {
	played []*audio.Buffer
	err    error
	closed bool
}

func (m *mockSink) Name() string { return "mock" }

func (m *mockSink) Play(ctx context.Context, buf *audio.Buffer) error {
	if m.err != nil {
		return m.err
	}
	m.played = append(m.played, buf)
	return nil
}

func (m *mockSink) Close() error {
	m.closed = true
	return nil
}

func TestPlayer_NoSink(t *testing.T) {
	logger, out := testLogger()
	p := NewPlayer(nil, logger)

	if err := p.Play(context.Background(), testClip()); err != nil {
		t.Fatalf("Play() error = %v, want nil", err)
	}
	if !strings.Contains(out.String(), "no audio sink configured") {
		t.Errorf("expected a warning, got %q", out.String())
	}
	if p.SinkName() != SinkNone {
		t.Errorf("SinkName() = %q, want %q", p.SinkName(), SinkNone)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestPlayer_Play(t *testing.T) {
	sink := &mockSink{}
	p := NewPlayer(sink, discardLogger())

	clip := testClip()
	if err := p.Play(context.Background(), clip); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if len(sink.played) != 1 || sink.played[0] != clip {
		t.Errorf("sink played %v, want the clip", sink.played)
	}

	if err := p.Close(); err != nil || !sink.closed {
		t.Errorf("Close() error = %v, closed = %v", err, sink.closed)
	}
}

func TestPlayer_SinkError(t *testing.T) {
	cause := errors.New("device busy")
	p := NewPlayer(&mockSink{err: cause}, discardLogger())

	err := p.Play(context.Background(), testClip())
	if !errors.Is(err, ErrPlayback) {
		t.Errorf("Play() error = %v, want ErrPlayback", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Play() error = %v, want it to wrap the sink error", err)
	}
}

func TestPlayer_Cancelled(t *testing.T) {
	p := NewPlayer(&mockSink{err: context.Canceled}, discardLogger())

	err := p.Play(context.Background(), testClip())
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrPlayback) {
		t.Errorf("Play() error = %v, want bare context.Canceled", err)
	}
}

func TestPlayer_EmptyBuffer(t *testing.T) {
	p := NewPlayer(&mockSink{}, discardLogger())

	if err := p.Play(context.Background(), nil); !errors.Is(err, ErrPlayback) {
		t.Errorf("Play(nil) error = %v, want ErrPlayback", err)
	}
	if err := p.Play(context.Background(), &audio.Buffer{SampleRate: 24000, Channels: 1}); !errors.Is(err, ErrPlayback) {
		t.Errorf("Play(empty) error = %v, want ErrPlayback", err)
	}
}

func TestFileSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "clips")

	sink, err := NewFileSink(dir)
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}
	if sink.Name() != SinkFile {
		t.Errorf("Name() = %q", sink.Name())
	}

	if err := sink.Play(context.Background(), testClip()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	first := sink.LastPath()
	if err := sink.Play(context.Background(), testClip()); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if sink.LastPath() == first {
		t.Error("expected a new file per clip")
	}

	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	hdr, pcm, err := wav.Parse(data)
	if err != nil {
		t.Fatalf("wav.Parse() error = %v", err)
	}
	if hdr.SampleRate != 24000 || hdr.Channels != 1 || hdr.BitsPerSample != 16 {
		t.Errorf("header = %+v", hdr)
	}
	if !bytes.Equal(pcm, testClip().PCM16()) {
		t.Error("file PCM does not match the clip")
	}
}

func TestFileSink_Cancelled(t *testing.T) {
	sink, err := NewFileSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSink() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.Play(ctx, testClip()); !errors.Is(err, context.Canceled) {
		t.Errorf("Play() error = %v, want context.Canceled", err)
	}
	if sink.LastPath() != "" {
		t.Error("no file should be written after cancellation")
	}
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(Options{Type: SinkNone}, discardLogger())
	if err != nil || sink != nil {
		t.Errorf("NewSink(none) = %v, %v, want nil, nil", sink, err)
	}

	sink, err = NewSink(Options{Type: SinkFile, Dir: t.TempDir()}, discardLogger())
	if err != nil {
		t.Fatalf("NewSink(file) error = %v", err)
	}
	if sink.Name() != SinkFile {
		t.Errorf("NewSink(file).Name() = %q", sink.Name())
	}

	if _, err := NewSink(Options{Type: "speakers"}, discardLogger()); err == nil {
		t.Error("NewSink(unknown) should return error")
	}

	if _, err := NewSink(Options{Type: SinkDiscord, FFmpegPath: "ffmpeg"}, discardLogger()); err == nil {
		t.Error("NewSink(discord) without settings should return error")
	}
}

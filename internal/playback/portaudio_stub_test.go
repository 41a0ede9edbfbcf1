//go:build noportaudio

package playback

import (
	"errors"
	"testing"
)

func TestNewSinkWithoutPortAudio(t *testing.T) {
	sink, err := NewSink(Options{Type: SinkPortAudio}, discardLogger())
	if !errors.Is(err, errNoPortAudio) {
		t.Errorf("NewSink(portaudio) error = %v, want errNoPortAudio", err)
	}
	if sink != nil {
		t.Errorf("NewSink(portaudio) sink = %v, want nil", sink)
	}
}

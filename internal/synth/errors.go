package synth

import (
	"context"
	"errors"

	"github.com/dgnsrekt/ttsclient/internal/audio"
	"github.com/dgnsrekt/ttsclient/internal/credential"
	"github.com/dgnsrekt/ttsclient/internal/queue"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// Error kinds used in logs and metrics.
const (
	KindInvalidInput = "invalid_input"
	KindCipher       = "cipher"
	KindDecryption   = "decryption"
	KindTransport    = "transport"
	KindDecode       = "decode"
	KindPlayback     = "playback"
	KindCanceled     = "canceled"
	KindCleared      = "cleared"
	KindInternal     = "internal"
)

// ErrorKind classifies a request failure. ErrCipher is checked before
// ErrDecryption because decryption wraps both.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, queue.ErrQueueClosed):
		return KindCanceled
	case errors.Is(err, queue.ErrCleared):
		return KindCleared
	case errors.Is(err, credential.ErrCipher):
		return KindCipher
	case errors.Is(err, credential.ErrDecryption):
		return KindDecryption
	case errors.Is(err, credential.ErrInvalidInput),
		errors.Is(err, tts.ErrInvalidVoice),
		errors.Is(err, tts.ErrInvalidEncoding):
		return KindInvalidInput
	case errors.Is(err, tts.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	case errors.Is(err, audio.ErrDecode):
		return KindDecode
	case errors.Is(err, audio.ErrPlayback):
		return KindPlayback
	default:
		return KindInternal
	}
}

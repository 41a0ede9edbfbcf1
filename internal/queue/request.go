package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/ttsclient/internal/audio"
)

// PlaceholderText replaces empty text so that a request always speaks something.
const PlaceholderText = "You have not entered any text."

// State is the lifecycle stage of a Request.
type State int

const (
	StateQueued State = iota
	StateSending
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateSending:
		return "sending"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Callback receives the decoded (and possibly trimmed) audio of a request.
// It runs only on success.
type Callback func(buf *audio.Buffer)

// Request is one text-to-speech job.
type Request struct {
	ID        string
	Text      string
	Gender    string
	Callback  Callback
	CreatedAt time.Time

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

// NewRequest creates a queued request with a unique ID. Empty text is
// replaced by PlaceholderText.
func NewRequest(text, gender string, cb Callback) *Request {
	if text == "" {
		text = PlaceholderText
	}
	return &Request{
		ID:        uuid.New().String(),
		Text:      text,
		Gender:    gender,
		Callback:  cb,
		CreatedAt: time.Now(),
		state:     StateQueued,
		done:      make(chan struct{}),
	}
}

// State returns the current lifecycle stage.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure cause once the request has failed.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done is closed when the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// MarkSending moves a queued request to StateSending. It reports false if the
// request was not queued.
func (r *Request) MarkSending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateQueued {
		return false
	}
	r.state = StateSending
	return true
}

// Finish moves the request to StateSucceeded when err is nil and to
// StateFailed otherwise. Only the first call has an effect.
func (r *Request) Finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return
	}
	if err != nil {
		r.state = StateFailed
		r.err = err
	} else {
		r.state = StateSucceeded
	}
	close(r.done)
}

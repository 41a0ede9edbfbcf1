// Package synth turns queued text into audio, one request at a time.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/dgnsrekt/ttsclient/internal/audio"
	"github.com/dgnsrekt/ttsclient/internal/credential"
	"github.com/dgnsrekt/ttsclient/internal/queue"
	"github.com/dgnsrekt/ttsclient/internal/telemetry"
	"github.com/dgnsrekt/ttsclient/internal/tts"
)

// CredentialSource yields the stored credential. It is read for every
// request so that a rotated key takes effect without a restart.
type CredentialSource interface {
	Load() (credential.Credential, error)
}

// Caller sends an encoded synthesize request.
type Caller interface {
	Call(ctx context.Context, body []byte, apiKey string) ([]byte, error)
}

// Options are the fixed synthesis and post-processing settings.
type Options struct {
	Voice             tts.VoiceSettings
	Audio             tts.AudioSettings
	TrimEnds          bool
	TrimStart         float64
	TrimEnd           float64
	PlayWhenGenerated bool
	// RequestTimeout bounds each call; zero waits indefinitely.
	RequestTimeout time.Duration
}

// Player plays a decoded clip to completion or until ctx ends. Failures should
// wrap audio.ErrPlayback.
type Player interface {
	Play(ctx context.Context, buf *audio.Buffer) error
}

// Deps are the collaborators of a Requester. Metrics, Tracer and Player may
// be nil.
type Deps struct {
	Queue       *queue.Queue
	Credentials CredentialSource
	Client      Caller
	Player      Player
	Metrics     *telemetry.Metrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

// Requester drains the queue serially: at most one request is in flight.
type Requester struct {
	opts    Options
	queue   *queue.Queue
	creds   CredentialSource
	client  Caller
	player  Player
	metrics *telemetry.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger

	voiceMu sync.RWMutex
	voice   tts.VoiceSettings

	inFlight atomic.Bool
	wg       sync.WaitGroup
	doneCh   chan struct{}
}

// New creates a Requester.
func New(opts Options, deps Deps) *Requester {
	logger := deps.Logger.With("component", "synth")

	r := &Requester{
		opts:    opts,
		queue:   deps.Queue,
		creds:   deps.Credentials,
		client:  deps.Client,
		player:  deps.Player,
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
		logger:  logger,
		voice:   opts.Voice,
		doneCh:  make(chan struct{}, 1),
	}
	if r.queue == nil {
		r.queue = queue.NewQueue(0, logger)
	}
	if r.metrics == nil {
		r.metrics = telemetry.NewNoopMetrics()
	}
	if r.tracer == nil {
		r.tracer = tracenoop.NewTracerProvider().Tracer("synth")
	}
	return r
}

// Enqueue adds a request to the tail of the queue without blocking. Empty
// text is replaced by queue.PlaceholderText. cb runs only on success.
func (r *Requester) Enqueue(text, gender string, cb queue.Callback) (*queue.Request, error) {
	req := queue.NewRequest(text, gender, cb)
	if err := r.queue.Push(req); err != nil {
		return nil, err
	}

	r.metrics.RequestEnqueued(context.Background())
	r.logger.Debug("request queued",
		"request_id", req.ID,
		"text_length", len(req.Text),
		"pending", r.queue.Len(),
	)
	return req, nil
}

// DrainStep starts the head request if nothing is in flight. It reports
// whether a request was started. Processing runs on its own goroutine under
// ctx; the step itself never blocks.
func (r *Requester) DrainStep(ctx context.Context) bool {
	if !r.inFlight.CompareAndSwap(false, true) {
		return false
	}

	req := r.queue.Pop()
	if req == nil {
		r.inFlight.Store(false)
		return false
	}
	req.MarkSending()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.process(ctx, req)
		r.inFlight.Store(false)

		select {
		case r.doneCh <- struct{}{}:
		default:
		}
	}()
	return true
}

// Run calls DrainStep every tick and whenever a request is queued or
// finishes. It returns once ctx ends and the in-flight request, which is
// cancelled with ctx, has returned.
func (r *Requester) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	r.logger.Info("requester started", "tick", tick)
	for {
		r.DrainStep(ctx)

		select {
		case <-ctx.Done():
			r.wg.Wait()
			r.logger.Info("requester stopped", "pending", r.queue.Len())
			return
		case <-ticker.C:
		case <-r.queue.Notify():
		case <-r.doneCh:
		}
	}
}

// Wait blocks until the in-flight request, if any, has finished.
func (r *Requester) Wait() {
	r.wg.Wait()
}

// Shutdown rejects new requests and drops pending ones.
func (r *Requester) Shutdown() int {
	r.queue.Close()
	return r.queue.Clear()
}

// InFlight reports whether a request is being processed.
func (r *Requester) InFlight() bool {
	return r.inFlight.Load()
}

// Pending returns the number of queued requests.
func (r *Requester) Pending() int {
	return r.queue.Len()
}

// Clear drops all queued requests. The in-flight request is not affected.
func (r *Requester) Clear() int {
	return r.queue.Clear()
}

func (r *Requester) process(ctx context.Context, req *queue.Request) {
	start := time.Now()

	ctx, span := r.tracer.Start(ctx, "synthesize", trace.WithAttributes(
		attribute.String("request.id", req.ID),
		attribute.Int("text.length", len(req.Text)),
	))
	defer span.End()

	r.logger.Info("processing request", "request_id", req.ID, "text_length", len(req.Text))

	err := r.handle(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		kind := ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		r.metrics.RequestCompleted(ctx, telemetry.OutcomeFailed, kind, elapsed)

		if kind == KindCanceled {
			r.logger.Info("request cancelled", "request_id", req.ID)
		} else {
			r.logger.Error("request failed",
				"request_id", req.ID,
				"error_kind", kind,
				"error", err,
			)
		}
		req.Finish(err)
		return
	}

	r.metrics.RequestCompleted(ctx, telemetry.OutcomeSucceeded, "", elapsed)
	r.logger.Info("request completed", "request_id", req.ID, "elapsed", elapsed)
	req.Finish(nil)
}

// handle runs the pipeline for one request. The callback is invoked before
// playback, and only once audio has been decoded.
func (r *Requester) handle(ctx context.Context, req *queue.Request) error {
	buf, err := r.synthesize(ctx, req.Text, req.Gender)
	if err != nil {
		return err
	}

	r.metrics.AudioProduced(ctx, buf.Duration())
	r.logger.Debug("audio decoded",
		"request_id", req.ID,
		"duration_seconds", buf.Duration(),
		"sample_rate", buf.SampleRate,
	)

	if req.Callback != nil {
		req.Callback(buf)
	}

	if r.opts.PlayWhenGenerated {
		if r.player == nil {
			r.logger.Warn("no player configured, skipping playback", "request_id", req.ID)
			return nil
		}
		return r.player.Play(ctx, buf)
	}
	return nil
}

func (r *Requester) synthesize(ctx context.Context, text, gender string) (*audio.Buffer, error) {
	cred, err := r.creds.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: load credential: %w", credential.ErrDecryption, err)
	}
	apiKey, err := cred.Decrypt()
	if err != nil {
		return nil, err
	}

	body, err := tts.BuildRequestBody(text, gender, r.Voice(), r.opts.Audio)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if r.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.RequestTimeout)
		defer cancel()
	}

	resp, err := r.client.Call(callCtx, body, apiKey)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: no response within %s", tts.ErrTransport, r.opts.RequestTimeout)
		}
		return nil, err
	}

	content, err := tts.ParseResponse(resp)
	if err != nil {
		return nil, err
	}

	buf, err := audio.Decode(content, r.opts.Audio.Encoding, r.opts.Audio.SampleRateHertz)
	if err != nil {
		return nil, err
	}

	if r.opts.TrimEnds {
		buf = audio.Trim(buf, r.opts.TrimStart, r.opts.TrimEnd)
	}
	return buf, nil
}

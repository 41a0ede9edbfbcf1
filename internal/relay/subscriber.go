// Package relay feeds ntfy topic messages into the synthesis queue.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dgnsrekt/ttsclient/internal/queue"
)

// Message is one event from the ntfy JSON stream.
type Message struct {
	ID      string `json:"id"`
	Time    int64  `json:"time"`
	Event   string `json:"event"`
	Topic   string `json:"topic"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Enqueuer accepts text for synthesis.
type Enqueuer interface {
	Enqueue(text, gender string, cb queue.Callback) (*queue.Request, error)
}

// Options configures a Subscriber.
type Options struct {
	Server        string
	Topics        []string
	Prefix        string
	Gender        string
	DedupeWindow  time.Duration
	MaxTextLength int
	MaxBackoff    time.Duration
}

// Subscriber streams ntfy topics and enqueues each message as a request.
type Subscriber struct {
	opts       Options
	target     Enqueuer
	logger     *slog.Logger
	httpClient *http.Client
	dedupe     *dedupe
	wait       func(ctx context.Context, d time.Duration) bool
}

// NewSubscriber creates a Subscriber. httpClient may be nil; it must not set
// a timeout since the stream stays open.
func NewSubscriber(opts Options, target Enqueuer, httpClient *http.Client, logger *slog.Logger) *Subscriber {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Subscriber{
		opts:       opts,
		target:     target,
		logger:     logger.With("component", "relay"),
		httpClient: httpClient,
		dedupe:     newDedupe(opts.DedupeWindow),
		wait:       sleepContext,
	}
}

// sleepContext waits for d and reports false if ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// Run subscribes to every topic and blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context) {
	var wg sync.WaitGroup

	for _, topic := range s.opts.Topics {
		wg.Add(1)
		go func(t string) {
			defer wg.Done()
			s.subscribeLoop(ctx, t)
		}(topic)
	}

	if s.opts.DedupeWindow > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dedupe.cleanupLoop(ctx)
		}()
	}

	wg.Wait()
}

// subscribeLoop reconnects with exponential backoff until ctx is done. The
// backoff starts over after every accepted connection.
func (s *Subscriber) subscribeLoop(ctx context.Context, topic string) {
	initial := min(time.Second, s.opts.MaxBackoff)
	backoff := initial

	for {
		if ctx.Err() != nil {
			return
		}

		s.logger.Info("subscribing to ntfy topic", "topic", topic, "server", s.opts.Server)

		body, err := s.connect(ctx, topic)
		if err == nil {
			backoff = initial
			err = s.read(body)
			body.Close()
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("subscription error, reconnecting", "topic", topic, "error", err, "backoff", backoff)
		}

		if !s.wait(ctx, backoff) {
			return
		}

		backoff = min(backoff*2, s.opts.MaxBackoff)
	}
}

// subscribe reads one stream connection until it ends.
func (s *Subscriber) subscribe(ctx context.Context, topic string) error {
	body, err := s.connect(ctx, topic)
	if err != nil {
		return err
	}
	defer body.Close()
	return s.read(body)
}

// connect opens the topic stream. The caller closes the returned body.
func (s *Subscriber) connect(ctx context.Context, topic string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/%s/json", strings.TrimSuffix(s.opts.Server, "/"), topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	s.logger.Info("connected to ntfy stream", "topic", topic)
	return resp.Body, nil
}

// read handles stream events until the body ends.
func (s *Subscriber) read(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("failed to parse ntfy message", "error", err)
			continue
		}

		// keepalive, open and poll_request events carry no text
		if msg.Event != "message" {
			continue
		}

		s.handleMessage(msg)
	}

	return scanner.Err()
}

func (s *Subscriber) handleMessage(msg Message) {
	text := s.FormatText(msg.Title, msg.Message)
	if text == "" {
		s.logger.Debug("skipping empty message", "ntfy_id", msg.ID)
		return
	}

	if s.dedupe.seen(text) {
		s.logger.Debug("skipping duplicate message", "ntfy_id", msg.ID)
		return
	}

	req, err := s.target.Enqueue(text, s.opts.Gender, nil)
	if err != nil {
		s.logger.Error("failed to enqueue ntfy message",
			"error", err,
			"ntfy_id", msg.ID,
			"text_length", len(text),
		)
		return
	}

	s.logger.Info("ntfy message enqueued",
		"ntfy_id", msg.ID,
		"request_id", req.ID,
		"topic", msg.Topic,
		"text_length", len(text),
	)
}

// FormatText joins prefix, title and message with ": " and truncates the
// result to at most MaxTextLength bytes without splitting a rune.
func (s *Subscriber) FormatText(title, message string) string {
	var parts []string
	for _, p := range []string{s.opts.Prefix, title, message} {
		if p != "" {
			parts = append(parts, p)
		}
	}

	text := strings.Join(parts, ": ")
	if s.opts.MaxTextLength > 0 && len(text) > s.opts.MaxTextLength {
		cut := s.opts.MaxTextLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}

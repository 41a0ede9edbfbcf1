package queue

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/ttsclient/internal/logging"
)

// testTimeout is the maximum time to wait for any test condition.
// This is a failsafe, not primary synchronization.
const testTimeout = 5 * time.Second

func testLogger() *slog.Logger {
	return logging.New("error", "text")
}

func TestQueuePush(t *testing.T) {
	q := NewQueue(0, testLogger())

	if err := q.Push(NewRequest("Hello", "", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if q.Len() != 1 {
		t.Errorf("expected queue length 1, got %d", q.Len())
	}
}

func TestQueueUnbounded(t *testing.T) {
	q := NewQueue(0, testLogger())

	for i := 0; i < 1000; i++ {
		if err := q.Push(NewRequest(fmt.Sprintf("text %d", i), "", nil)); err != nil {
			t.Fatalf("push %d: unexpected error: %v", i, err)
		}
	}

	if q.Len() != 1000 {
		t.Errorf("expected queue length 1000, got %d", q.Len())
	}
}

func TestQueueCapacity(t *testing.T) {
	q := NewQueue(2, testLogger())

	if err := q.Push(NewRequest("Hello", "", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Push(NewRequest("World", "", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := q.Push(NewRequest("Overflow", "", nil))
	if err != ErrQueueFull {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(0, testLogger())

	for _, text := range []string{"A", "B", "C"} {
		q.Push(NewRequest(text, "", nil))
	}

	for _, want := range []string{"A", "B", "C"} {
		r := q.Pop()
		if r == nil {
			t.Fatalf("expected request %q, got nil", want)
		}
		if r.Text != want {
			t.Errorf("expected '%s', got '%s'", want, r.Text)
		}
	}

	if r := q.Pop(); r != nil {
		t.Errorf("expected nil from empty queue, got %q", r.Text)
	}
}

func TestQueueClosed(t *testing.T) {
	q := NewQueue(10, testLogger())
	q.Push(NewRequest("Pending", "", nil))
	q.Close()

	err := q.Push(NewRequest("Hello", "", nil))
	if err != ErrQueueClosed {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}

	// Already queued requests remain available.
	if r := q.Pop(); r == nil || r.Text != "Pending" {
		t.Error("expected pending request to survive Close")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(10, testLogger())

	r1 := NewRequest("Hello", "", nil)
	r2 := NewRequest("World", "", nil)
	q.Push(r1)
	q.Push(r2)

	if n := q.Clear(); n != 2 {
		t.Errorf("expected 2 dropped, got %d", n)
	}
	if q.Len() != 0 {
		t.Errorf("expected queue length 0 after clear, got %d", q.Len())
	}

	for _, r := range []*Request{r1, r2} {
		select {
		case <-r.Done():
		default:
			t.Fatalf("dropped request %s was not finished", r.ID)
		}
		if !errors.Is(r.Err(), ErrCleared) || errors.Is(r.Err(), ErrQueueClosed) {
			t.Errorf("expected ErrCleared, got %v", r.Err())
		}
	}

	// Pushing works again after a clear.
	if err := q.Push(NewRequest("Again", "", nil)); err != nil {
		t.Fatalf("unexpected error after clear: %v", err)
	}
}

func TestQueueClearAfterClose(t *testing.T) {
	q := NewQueue(10, testLogger())

	r := NewRequest("Hello", "", nil)
	q.Push(r)
	q.Close()

	if n := q.Clear(); n != 1 {
		t.Errorf("expected 1 dropped, got %d", n)
	}
	if !errors.Is(r.Err(), ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", r.Err())
	}
}

func TestQueueNotify(t *testing.T) {
	q := NewQueue(0, testLogger())

	select {
	case <-q.Notify():
		t.Fatal("unexpected signal on empty queue")
	default:
	}

	// Several pushes coalesce into one pending signal.
	q.Push(NewRequest("A", "", nil))
	q.Push(NewRequest("B", "", nil))

	select {
	case <-q.Notify():
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for push signal")
	}

	select {
	case <-q.Notify():
		t.Fatal("signals should be coalesced")
	default:
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := NewQueue(0, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				q.Push(NewRequest("text", "", nil))
			}
		}()
	}

	popped := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	deadline := time.After(testTimeout)
	for popped < 400 {
		if q.Pop() != nil {
			popped++
			continue
		}
		select {
		case <-q.Notify():
		case <-done:
		case <-deadline:
			t.Fatalf("timeout after popping %d requests", popped)
		}
	}

	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

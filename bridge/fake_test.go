package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hwellmann/folkfriend/engine"
)

// fakeEngine echoes queries back as tune ids so results can be paired
// with the call that produced them.
type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	rejectAll bool
	malformed bool
	indexes   int
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) Version(ctx context.Context) (string, error) {
	f.record("version")
	return "fake-1", nil
}

func (f *fakeEngine) LoadIndex(ctx context.Context, index []byte) error {
	f.record("load")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rejectAll || !strings.HasPrefix(string(index), "{") {
		return fmt.Errorf("%w: fake refuses %s", engine.ErrIndexRejected, index)
	}
	f.indexes++
	return nil
}

func (f *fakeEngine) result(kind, q string) (string, error) {
	f.record(kind + ":" + q)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.malformed {
		return "not json", nil
	}
	return fmt.Sprintf(`[{"tune_id":%q,"display_name":%q,"score":1}]`, q, kind), nil
}

func (f *fakeEngine) TranscriptionQuery(ctx context.Context, query string) (string, error) {
	return f.result("transcription", query)
}

func (f *fakeEngine) NameQuery(ctx context.Context, query string) (string, error) {
	return f.result("name", query)
}

func (f *fakeEngine) ContourToABC(ctx context.Context, contour string) (string, error) {
	f.record("abc:" + contour)
	return "abc:" + contour, nil
}

func (f *fakeEngine) Close(ctx context.Context) error {
	return nil
}

// heldLoader blocks in Load until Release is called.
type heldLoader struct {
	release chan struct{}
	once    sync.Once
	eng     engine.Engine
	err     error
}

func newHeldLoader(eng engine.Engine) *heldLoader {
	return &heldLoader{release: make(chan struct{}), eng: eng}
}

func (l *heldLoader) Load(ctx context.Context) (engine.Engine, error) {
	select {
	case <-l.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.eng, nil
}

func (l *heldLoader) Release() {
	l.once.Do(func() { close(l.release) })
}

const shortWait = 50 * time.Millisecond

// pending reports whether ch stays empty for a short while.
func pending[T any](t *testing.T, ch <-chan T) bool {
	t.Helper()
	select {
	case <-ch:
		return false
	case <-time.After(shortWait):
		return true
	}
}

type outcome[T any] struct {
	val T
	err error
}

func async[T any](fn func() (T, error)) <-chan outcome[T] {
	ch := make(chan outcome[T], 1)
	go func() {
		v, err := fn()
		ch <- outcome[T]{v, err}
	}()
	return ch
}

func recv[T any](t *testing.T, ch <-chan outcome[T]) outcome[T] {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("call did not complete")
		return outcome[T]{}
	}
}

func newReadyHost(t *testing.T, f *fakeEngine) *Host {
	t.Helper()
	l := newHeldLoader(f)
	l.Release()
	h := NewHost(l)
	t.Cleanup(func() { h.Close() })
	if err := h.LoadIndex(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("load index: %v", err)
	}
	return h
}

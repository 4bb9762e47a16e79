package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/transport"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Proxy is the control-side handle to an execution host. Every method
// sends one call and blocks only the calling goroutine until the matching
// reply arrives. A Proxy is safe for concurrent use.
//
// If the transport fails, calls already in flight stay pending until their
// context ends or the Proxy is closed. Nothing is retried.
type Proxy struct {
	conn   *transport.Conn
	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[uint64]chan Reply
	closed  bool

	done    chan struct{}
	readErr error

	closers []io.Closer
}

// NewProxy starts reading replies from conn. The Proxy takes ownership of
// conn and of any extra closers, which are closed by Close.
func NewProxy(conn *transport.Conn, closers ...io.Closer) *Proxy {
	p := &Proxy{
		conn:    conn,
		pending: make(map[uint64]chan Reply),
		done:    make(chan struct{}),
		closers: closers,
	}
	go p.readLoop()
	return p
}

func (p *Proxy) readLoop() {
	defer close(p.done)
	log := Logger()

	for {
		var r Reply
		if err := p.conn.Receive(&r); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Error("read reply", zap.Error(err))
			}
			p.readErr = err
			return
		}
		p.deliver(r)
	}
}

// deliver hands r to the call waiting on its id. An entry is removed under
// the lock before its channel is written, so each call sees at most one reply.
func (p *Proxy) deliver(r Reply) {
	p.mu.Lock()
	ch, ok := p.pending[r.ID]
	delete(p.pending, r.ID)
	p.mu.Unlock()

	if !ok {
		Logger().Warn("reply for unknown call", zap.Uint64("id", r.ID))
		return
	}
	ch <- r
}

func (p *Proxy) forget(id uint64) {
	p.mu.Lock()
	delete(p.pending, id)
	p.mu.Unlock()
}

// Pending returns the number of calls awaiting a reply.
func (p *Proxy) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Done is closed once the transport stops delivering replies.
func (p *Proxy) Done() <-chan struct{} {
	return p.done
}

// Err returns the error that stopped the reply reader, or nil while it is
// running. A clean hang-up is reported as io.EOF.
func (p *Proxy) Err() error {
	select {
	case <-p.done:
		return p.readErr
	default:
		return nil
	}
}

func (p *Proxy) call(ctx context.Context, method string, args json.RawMessage, out any) error {
	id := p.nextID.Add(1)
	ch := make(chan Reply, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrProxyClosed
	}
	p.pending[id] = ch
	p.mu.Unlock()

	if err := p.conn.Send(Call{ID: id, Method: method, Args: args}); err != nil {
		p.forget(id)
		return fmt.Errorf("%s: %w", method, err)
	}

	select {
	case r, ok := <-ch:
		if !ok {
			return ErrProxyClosed
		}
		if r.Error != "" {
			return &RemoteError{Method: method, Code: r.Code, Message: r.Error}
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(r.Data, out); err != nil {
			return fmt.Errorf("%s: decode reply: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		p.forget(id)
		return ctx.Err()
	}
}

func stringPayload(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Version returns the engine-reported version string.
func (p *Proxy) Version(ctx context.Context) (string, error) {
	var v string
	if err := p.call(ctx, MethodVersion, nil, &v); err != nil {
		return "", err
	}
	return v, nil
}

// LoadIndexFromJSONObj hands an index to the engine. obj may be raw JSON
// ([]byte or json.RawMessage) or any value that marshals to a JSON object.
// The call fails if the engine rejects the index.
func (p *Proxy) LoadIndexFromJSONObj(ctx context.Context, obj any) error {
	var raw json.RawMessage
	switch v := obj.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(obj)
		if err != nil {
			return fmt.Errorf("%s: %w: %v", MethodLoadIndex, ErrInvalidArgs, err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return fmt.Errorf("%s: %w: not valid JSON", MethodLoadIndex, ErrInvalidArgs)
	}
	return p.call(ctx, MethodLoadIndex, raw, nil)
}

// RunTranscriptionQuery searches the loaded index by melodic contour.
func (p *Proxy) RunTranscriptionQuery(ctx context.Context, query string) (engine.ResultSet, error) {
	var rs engine.ResultSet
	if err := p.call(ctx, MethodTranscriptionQuery, stringPayload(query), &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// RunNameQuery searches the loaded index by tune name.
func (p *Proxy) RunNameQuery(ctx context.Context, query string) (engine.ResultSet, error) {
	var rs engine.ResultSet
	if err := p.call(ctx, MethodNameQuery, stringPayload(query), &rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// ContourToAbc renders a contour as ABC notation.
func (p *Proxy) ContourToAbc(ctx context.Context, contour string) (string, error) {
	var abc string
	if err := p.call(ctx, MethodContourToABC, stringPayload(contour), &abc); err != nil {
		return "", err
	}
	return abc, nil
}

// Close rejects every pending call with ErrProxyClosed and tears down the
// transport. The process-wide default proxy is never closed.
func (p *Proxy) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
	p.mu.Unlock()

	err := p.conn.Close()
	for _, c := range p.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}

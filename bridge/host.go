package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/gate"
	"github.com/hwellmann/folkfriend/transport"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Host's engine.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type jobResult struct {
	data any
	err  error
}

type job struct {
	ctx    context.Context
	method string
	op     Operation
	args   json.RawMessage
	done   chan jobResult
}

// Host owns a search engine inside the execution context. The engine is
// loaded once in the background and only ever touched by a single owner
// goroutine, which runs jobs one at a time.
type Host struct {
	gate   *gate.Gate
	ops    *Registry
	jobs   chan job
	closed chan struct{}
	state  atomic.Int32

	closeOnce sync.Once
	cancel    context.CancelFunc
	stopped   chan struct{}
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

type hostConfig struct {
	onResolve func(gate.Stage)
}

// WithStageHook registers fn to be called whenever a readiness stage
// resolves.
func WithStageHook(fn func(gate.Stage)) HostOption {
	return func(c *hostConfig) {
		c.onResolve = fn
	}
}

// NewHost starts loading the engine from loader and returns immediately.
// Calls made before the engine is loaded wait for it.
func NewHost(loader engine.Loader, opts ...HostOption) *Host {
	var cfg hostConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var gateOpts []gate.Option
	if cfg.onResolve != nil {
		gateOpts = append(gateOpts, gate.WithResolveHook(cfg.onResolve))
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		gate:    gate.New(gateOpts...),
		jobs:    make(chan job),
		closed:  make(chan struct{}),
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	h.ops = h.expose()

	h.state.Store(int32(StateLoading))
	go h.run(ctx, loader)
	return h
}

// State reports the engine lifecycle state.
func (h *Host) State() State {
	return State(h.state.Load())
}

// Stage reports which readiness stages have resolved.
func (h *Host) Stage() gate.Stage {
	return h.gate.State()
}

// Methods returns the names of the remotely callable methods.
func (h *Host) Methods() []string {
	return h.ops.List()
}

func (h *Host) run(ctx context.Context, loader engine.Loader) {
	defer close(h.stopped)
	log := Logger()

	start := time.Now()
	eng, err := loader.Load(ctx)
	if err == nil && eng == nil {
		err = errors.New("loader returned no engine")
	}
	if err != nil {
		h.state.Store(int32(StateFailed))
		log.Error("engine failed to load", zap.Error(err))
		h.gate.Fail(err)
		return
	}

	h.state.Store(int32(StateReady))
	log.Info("engine loaded", zap.Duration("elapsed", time.Since(start)))
	h.gate.Resolve(gate.EngineLoaded)

	defer func() {
		if err := eng.Close(context.Background()); err != nil {
			log.Warn("close engine", zap.Error(err))
		}
	}()

	for {
		select {
		case j := <-h.jobs:
			data, err := j.op.Handle(j.ctx, eng, j.args)
			if err != nil {
				log.Debug("call failed", zap.String("method", j.method), zap.Error(err))
			}
			j.done <- jobResult{data: data, err: err}
		case <-h.closed:
			return
		}
	}
}

// Close stops the owner goroutine and releases the engine. Calls waiting
// on readiness are not released unless their context ends.
func (h *Host) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.cancel()
	})
	<-h.stopped
	return nil
}

// enqueue hands a job to the owner goroutine. Once it returns without
// error the job is guaranteed to run.
func (h *Host) enqueue(ctx context.Context, method string, op Operation, args json.RawMessage) (<-chan jobResult, error) {
	j := job{
		ctx:    context.WithoutCancel(ctx),
		method: method,
		op:     op,
		args:   args,
		done:   make(chan jobResult, 1),
	}
	select {
	case h.jobs <- j:
		return j.done, nil
	case <-h.closed:
		return nil, ErrHostClosed
	case <-h.stopped:
		// Owner exited after a failed load.
		return nil, h.gate.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func await(ctx context.Context, done <-chan jobResult) (any, error) {
	select {
	case r := <-done:
		return r.data, r.err
	case <-ctx.Done():
		// The job still runs; only this caller stops waiting.
		return nil, ctx.Err()
	}
}

// invoke runs method once its readiness stages resolve. started is called
// as soon as the call's position in the owner's queue no longer matters:
// either it has been enqueued, or it is parked on the gate.
func (h *Host) invoke(ctx context.Context, method string, args json.RawMessage, started func()) (any, error) {
	op, ok := h.ops.Get(method)
	if !ok {
		started()
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	if !h.gate.Ready(op.Requires) {
		started()
		if err := h.gate.Wait(ctx, op.Requires); err != nil {
			return nil, err
		}
	}

	done, err := h.enqueue(ctx, method, op, args)
	started()
	if err != nil {
		return nil, err
	}
	return await(ctx, done)
}

func (h *Host) call(ctx context.Context, method string, arg any) (any, error) {
	var raw json.RawMessage
	if arg != nil {
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		raw = b
	}
	return h.invoke(ctx, method, raw, func() {})
}

// Version returns the engine's version string.
func (h *Host) Version(ctx context.Context) (string, error) {
	v, err := h.call(ctx, MethodVersion, nil)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// LoadIndex installs a tune index given as a JSON object.
func (h *Host) LoadIndex(ctx context.Context, index json.RawMessage) error {
	_, err := h.invoke(ctx, MethodLoadIndex, index, func() {})
	return err
}

// RunTranscriptionQuery searches the index by contour.
func (h *Host) RunTranscriptionQuery(ctx context.Context, query string) (engine.ResultSet, error) {
	v, err := h.call(ctx, MethodTranscriptionQuery, query)
	if err != nil {
		return nil, err
	}
	return v.(engine.ResultSet), nil
}

// RunNameQuery searches the index by tune name.
func (h *Host) RunNameQuery(ctx context.Context, query string) (engine.ResultSet, error) {
	v, err := h.call(ctx, MethodNameQuery, query)
	if err != nil {
		return nil, err
	}
	return v.(engine.ResultSet), nil
}

// ContourToABC renders a contour as ABC notation.
func (h *Host) ContourToABC(ctx context.Context, contour string) (string, error) {
	v, err := h.call(ctx, MethodContourToABC, contour)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Serve answers calls arriving on conn until the peer hangs up or ctx
// ends. Calls that are ready when they arrive reach the engine in the
// order they were received.
func (h *Host) Serve(ctx context.Context, conn *transport.Conn) error {
	log := Logger()

	// Deferred in this order so that pending handlers are released by
	// cancel before Serve waits for them.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	turn := make(chan struct{})
	close(turn)

	for {
		var c Call
		if err := conn.Receive(&c); err != nil {
			if transport.IsClosed(err) || ctx.Err() != nil {
				return nil
			}
			return err
		}

		next := make(chan struct{})
		wg.Add(1)
		go func(c Call, turn <-chan struct{}, next chan struct{}) {
			defer wg.Done()
			started := sync.OnceFunc(func() { close(next) })
			defer started()

			<-turn
			data, err := h.invoke(ctx, c.Method, c.Args, started)
			if err := conn.Send(replyFor(c.ID, data, err)); err != nil {
				log.Warn("send reply", zap.Uint64("id", c.ID), zap.String("method", c.Method), zap.Error(err))
			}
		}(c, turn, next)
		turn = next
	}
}

func (h *Host) expose() *Registry {
	r := NewRegistry()

	r.Register(MethodVersion, Operation{
		Requires: gate.EngineLoaded,
		Handle: func(ctx context.Context, e engine.Engine, _ json.RawMessage) (any, error) {
			return e.Version(ctx)
		},
	})

	r.Register(MethodLoadIndex, Operation{
		Requires: gate.EngineLoaded,
		Handle: func(ctx context.Context, e engine.Engine, args json.RawMessage) (any, error) {
			if err := e.LoadIndex(ctx, args); err != nil {
				Logger().Warn("index rejected", zap.Error(err))
				return nil, err
			}
			Logger().Info("index loaded", zap.Int("bytes", len(args)))
			h.gate.Resolve(gate.IndexLoaded)
			return nil, nil
		},
	})

	r.Register(MethodTranscriptionQuery, Operation{
		Requires: gate.EngineLoaded | gate.IndexLoaded,
		Handle: queryHandler(engine.Engine.TranscriptionQuery),
	})

	r.Register(MethodNameQuery, Operation{
		Requires: gate.EngineLoaded | gate.IndexLoaded,
		Handle: queryHandler(engine.Engine.NameQuery),
	})

	r.Register(MethodContourToABC, Operation{
		Requires: gate.EngineLoaded,
		Handle: func(ctx context.Context, e engine.Engine, args json.RawMessage) (any, error) {
			contour, err := stringArg(args)
			if err != nil {
				return nil, err
			}
			return e.ContourToABC(ctx, contour)
		},
	})

	return r
}

// queryHandler adapts an engine query that returns serialised JSON. The
// raw result is parsed before it leaves the execution context.
func queryHandler(query func(engine.Engine, context.Context, string) (string, error)) Handler {
	return func(ctx context.Context, e engine.Engine, args json.RawMessage) (any, error) {
		q, err := stringArg(args)
		if err != nil {
			return nil, err
		}
		raw, err := query(e, ctx, q)
		if err != nil {
			return nil, err
		}
		var rs engine.ResultSet
		if err := json.Unmarshal([]byte(raw), &rs); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResult, err)
		}
		if rs == nil {
			rs = engine.ResultSet{}
		}
		return rs, nil
	}
}

func stringArg(args json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(args, &s); err != nil {
		return "", fmt.Errorf("%w: expected a string: %v", ErrInvalidArgs, err)
	}
	return s, nil
}

// Package gate implements the staged readiness gate that orders engine
// operations behind one-shot readiness signals.
//
// A Gate tracks a bitmask of resolved stages. Each stage resolves at most
// once and never regresses. Wait blocks until every required stage has
// resolved, always awaiting EngineLoaded before IndexLoaded so that an
// engine failure is reported ahead of a missing index.
//
//	g := gate.New()
//	go func() {
//	    // ... instantiate engine ...
//	    g.Resolve(gate.EngineLoaded)
//	}()
//	if err := g.Wait(ctx, gate.EngineLoaded|gate.IndexLoaded); err != nil {
//	    return err
//	}
package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrEngineFailed is returned by Wait when the engine stage can never
// resolve because instantiation failed.
var ErrEngineFailed = errors.New("engine failed to load")

// Stage is a bitmask of readiness stages.
type Stage uint8

const (
	// EngineLoaded resolves once the engine module has been instantiated.
	EngineLoaded Stage = 1 << iota
	// IndexLoaded resolves once the engine has accepted an index payload.
	IndexLoaded

	// None requires no stage at all.
	None Stage = 0
)

// waitOrder is the order in which Wait awaits stages.
var waitOrder = []Stage{EngineLoaded, IndexLoaded}

func (s Stage) String() string {
	if s == None {
		return "none"
	}
	var parts []string
	if s&EngineLoaded != 0 {
		parts = append(parts, "engine")
	}
	if s&IndexLoaded != 0 {
		parts = append(parts, "index")
	}
	if rest := s &^ (EngineLoaded | IndexLoaded); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint8(rest)))
	}
	return strings.Join(parts, "+")
}

// Has reports whether every stage in required is set in s.
func (s Stage) Has(required Stage) bool {
	return s&required == required
}

// Gate is a set of one-shot readiness signals.
type Gate struct {
	mu      sync.Mutex
	state   Stage
	signals map[Stage]chan struct{}

	failed  chan struct{}
	failErr error

	onResolve func(Stage)
}

// Option configures a Gate.
type Option func(*Gate)

// WithResolveHook registers fn to be called, outside the gate lock, each
// time a stage transitions to resolved.
func WithResolveHook(fn func(Stage)) Option {
	return func(g *Gate) {
		g.onResolve = fn
	}
}

// New returns a Gate with no stage resolved.
func New(opts ...Option) *Gate {
	g := &Gate{
		signals: make(map[Stage]chan struct{}, len(waitOrder)),
		failed:  make(chan struct{}),
	}
	for _, s := range waitOrder {
		g.signals[s] = make(chan struct{})
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Resolve marks every stage in s as resolved. Stages that are already
// resolved are left untouched, so Resolve is safe to call repeatedly.
func (g *Gate) Resolve(s Stage) {
	g.mu.Lock()
	newly := s &^ g.state
	for _, stage := range waitOrder {
		if newly&stage != 0 {
			close(g.signals[stage])
		}
	}
	g.state |= s
	g.mu.Unlock()

	if newly != None && g.onResolve != nil {
		g.onResolve(newly)
	}
}

// Fail moves the gate into its failure state. Waiters blocked on
// EngineLoaded, and all future ones, return an error wrapping
// ErrEngineFailed and err. Fail has no effect once EngineLoaded resolved
// or after a previous Fail.
func (g *Gate) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failErr != nil || g.state.Has(EngineLoaded) {
		return
	}
	if err == nil {
		err = errors.New("unknown error")
	}
	g.failErr = err
	close(g.failed)
}

// Err returns the failure recorded by Fail, or nil.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failErr == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrEngineFailed, g.failErr)
}

// State returns the currently resolved stages.
func (g *Gate) State() Stage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Ready reports whether every stage in required has resolved.
func (g *Gate) Ready(required Stage) bool {
	return g.State().Has(required)
}

// Done returns a channel that is closed when stage s resolves. s must be
// EngineLoaded or IndexLoaded; for any other value, including a
// combination of stages, Done returns a nil channel, which never fires.
// Use Wait to await several stages.
func (g *Gate) Done(s Stage) <-chan struct{} {
	return g.signals[s]
}

// Wait blocks until every stage in required has resolved, awaiting them in
// order: EngineLoaded first, then IndexLoaded. It returns early with the
// context's error if ctx is done, or with ErrEngineFailed if the engine
// stage is required and the gate has failed.
//
// There is no timeout of its own: with a background context, Wait on a
// stage that never resolves blocks forever.
func (g *Gate) Wait(ctx context.Context, required Stage) error {
	for _, stage := range waitOrder {
		if required&stage == 0 {
			continue
		}
		if err := g.waitStage(ctx, stage); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gate) waitStage(ctx context.Context, stage Stage) error {
	signal := g.Done(stage)

	// A resolved stage wins over a failure or a cancelled context.
	select {
	case <-signal:
		return nil
	default:
	}

	select {
	case <-signal:
		return nil
	case <-g.failed:
		// No later stage can resolve once the engine has failed.
		return g.Err()
	case <-ctx.Done():
		return fmt.Errorf("wait for %s: %w", stage, ctx.Err())
	}
}

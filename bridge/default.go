package bridge

import (
	"context"
	"sync"
)

var (
	defaultMu      sync.Mutex
	defaultOpts    []Option
	defaultStarted bool

	defaultOnce  sync.Once
	defaultProxy *Proxy
	defaultErr   error
)

// Configure sets options for the process-wide proxy. It fails with
// ErrAlreadyStarted once Default has been called.
func Configure(opts ...Option) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStarted {
		return ErrAlreadyStarted
	}
	defaultOpts = append(defaultOpts, opts...)
	return nil
}

// Default returns the process-wide proxy, creating its execution context
// on first use. Every call returns the same Proxy, or the same error if
// creation failed. The execution context lives as long as the process.
func Default() (*Proxy, error) {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defaultStarted = true
		opts := defaultOpts
		defaultMu.Unlock()

		defaultProxy, defaultErr = New(context.Background(), opts...)
	})
	return defaultProxy, defaultErr
}

package engine

import (
	"context"
	_ "embed"
	"testing"
)

// mockWasm is a reactor module with the full engine export set; see
// testdata/mock.wat for its behaviour.
//
//go:embed testdata/mock.wasm
var mockWasm []byte

func loadMock(t *testing.T, opts ...Option) Engine {
	t.Helper()
	e, err := NewWasmLoaderFromBytes(mockWasm, opts...).Load(context.Background())
	if err != nil {
		t.Fatalf("failed to load mock engine: %v", err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

// Package folkfriend bridges a control context to the folkfriend
// transcription and search engine running in an isolated execution context.
//
// # Overview
//
// The engine is brought up asynchronously inside its own execution context
// (a worker goroutine or a child process). Callers never see that bring-up
// sequence: every call on the control proxy simply waits until the engine,
// and where needed a tune index, are ready.
//
// # Basic Usage
//
//	proxy, _ := bridge.Default()
//
//	version, _ := proxy.Version(ctx)
//	_ = proxy.LoadIndexFromJSONObj(ctx, index)
//	results, _ := proxy.RunNameQuery(ctx, "the kesh")
//
// # Choosing an Engine
//
//	// Compiled engine
//	bridge.Configure(bridge.WithLoader(engine.NewWasmLoader("folkfriend.wasm",
//	    engine.WithDiskCache())))
//
//	// Engine in a child process
//	bridge.Configure(bridge.WithSpawner(bridge.Subprocess(os.Args[0], "worker")))
//
// See the [bridge], [gate], [engine] and [transport] packages for detailed
// API documentation.
package folkfriend

// Package bridge lets a control context call into a search engine that
// lives in an isolated execution context.
//
// # Execution side
//
// A Host owns the engine. It starts loading it on construction and tracks
// two readiness stages in a gate.Gate: the engine being loaded and an index
// having been accepted. Every operation declares the stages it needs and
// waits for them before it reaches the engine:
//
//	version               engine
//	loadIndexFromJSONObj  engine
//	runTranscriptionQuery engine, then index
//	runNameQuery          engine, then index
//	contourToAbc          engine
//
// Host.Serve answers calls arriving on a transport.Conn.
//
// # Control side
//
// A Proxy sends each call with a fresh id and resolves it from the reply
// carrying the same id:
//
//	p, err := bridge.Default()
//	if err != nil {
//		return err
//	}
//	if err := p.LoadIndexFromJSONObj(ctx, index); err != nil {
//		return err
//	}
//	results, err := p.RunNameQuery(ctx, "the kesh")
//
// Callers never see readiness. A query issued while the engine is still
// loading simply takes longer to return.
//
// # Failure
//
// If the engine fails to load, every call that needs it fails with
// gate.ErrEngineFailed. An engine that is still loading makes calls wait,
// for as long as the caller's context allows.
package bridge

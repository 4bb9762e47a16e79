// Package engine defines the boundary to the folkfriend numerical/search
// engine and provides a wazero-backed binding for the compiled engine.
//
// An Engine is always owned by exactly one goroutine; implementations are
// not required to be safe for concurrent use.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrIndexRejected is returned by LoadIndex when the engine refuses the payload.
	ErrIndexRejected = errors.New("index rejected")
	// ErrNoIndex is returned by queries issued before any index was accepted.
	ErrNoIndex = errors.New("no index loaded")
	// ErrInvalidContour is returned when a contour contains characters the
	// engine cannot map to a pitch.
	ErrInvalidContour = errors.New("invalid contour")
	// ErrMissingExport is returned when a WASM module lacks a required export.
	ErrMissingExport = errors.New("missing export")
)

// Engine is the contract of the compiled engine. Query methods return the
// engine's serialised response verbatim; callers are responsible for
// parsing it into a ResultSet.
type Engine interface {
	// Version returns the engine-reported version string.
	Version(ctx context.Context) (string, error)

	// LoadIndex hands a JSON index object to the engine. It returns an error
	// wrapping ErrIndexRejected if the engine refuses the payload.
	LoadIndex(ctx context.Context, index []byte) error

	// TranscriptionQuery searches the index by melodic contour.
	TranscriptionQuery(ctx context.Context, query string) (string, error)

	// NameQuery searches the index by tune name.
	NameQuery(ctx context.Context, query string) (string, error)

	// ContourToABC renders a contour as ABC notation.
	ContourToABC(ctx context.Context, contour string) (string, error)

	// Close releases the engine's resources.
	Close(ctx context.Context) error
}

// Loader instantiates an Engine.
type Loader interface {
	Load(ctx context.Context) (Engine, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (Engine, error)

// Load calls f(ctx).
func (f LoaderFunc) Load(ctx context.Context) (Engine, error) {
	return f(ctx)
}

// Match is a single search hit.
type Match struct {
	SettingID   string  `json:"setting_id,omitempty"`
	TuneID      string  `json:"tune_id"`
	DisplayName string  `json:"display_name,omitempty"`
	Score       float64 `json:"score"`
}

// ResultSet is an ordered list of matches, best first. Engines serialise
// it as a JSON array.
type ResultSet []Match

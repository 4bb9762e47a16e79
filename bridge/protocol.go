package bridge

import (
	"encoding/json"
	"errors"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/gate"
)

// Remote method names. They match the facade surface consumed by the app.
const (
	MethodVersion            = "version"
	MethodLoadIndex          = "loadIndexFromJSONObj"
	MethodTranscriptionQuery = "runTranscriptionQuery"
	MethodNameQuery          = "runNameQuery"
	MethodContourToABC       = "contourToAbc"
)

var (
	ErrUnknownMethod   = errors.New("unknown method")
	ErrInvalidArgs     = errors.New("invalid arguments")
	ErrMalformedResult = errors.New("malformed engine result")
	ErrHostClosed      = errors.New("host closed")
	ErrProxyClosed     = errors.New("proxy closed")
	ErrAlreadyStarted  = errors.New("default proxy already started")
)

// Call is a remote invocation. ID correlates it with its Reply.
type Call struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Reply carries the outcome of exactly one Call.
type Reply struct {
	ID    uint64          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Error codes let sentinel errors survive the trip across the boundary.
var errorCodes = []struct {
	code string
	err  error
}{
	{"engine_failed", gate.ErrEngineFailed},
	{"index_rejected", engine.ErrIndexRejected},
	{"no_index", engine.ErrNoIndex},
	{"invalid_contour", engine.ErrInvalidContour},
	{"malformed_result", ErrMalformedResult},
	{"unknown_method", ErrUnknownMethod},
	{"invalid_args", ErrInvalidArgs},
	{"host_closed", ErrHostClosed},
}

func codeFor(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ""
}

func errorFor(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}

// RemoteError is a call rejected by the execution host.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Method + ": " + e.Message
}

// Unwrap returns the sentinel error matching the reply's code, so that
// errors.Is(err, engine.ErrIndexRejected) holds on the control side.
func (e *RemoteError) Unwrap() error {
	return errorFor(e.Code)
}

func replyFor(id uint64, data any, err error) Reply {
	if err != nil {
		return Reply{ID: id, Error: err.Error(), Code: codeFor(err)}
	}
	if data == nil {
		return Reply{ID: id}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Reply{ID: id, Error: "internal: failed to marshal result: " + err.Error()}
	}
	return Reply{ID: id, Data: raw}
}

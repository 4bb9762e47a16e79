package bridge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/gate"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	r.Register("b", Operation{Requires: gate.EngineLoaded})
	r.Register("a", Operation{
		Requires: gate.EngineLoaded | gate.IndexLoaded,
		Handle: func(ctx context.Context, e engine.Engine, args json.RawMessage) (any, error) {
			return "ok", nil
		},
	})

	op, ok := r.Get("a")
	if !ok {
		t.Fatal("expected a to be registered")
	}
	if op.Requires != gate.EngineLoaded|gate.IndexLoaded {
		t.Errorf("requires = %s", op.Requires)
	}
	if v, _ := op.Handle(context.Background(), nil, nil); v != "ok" {
		t.Errorf("handle = %v", v)
	}

	if _, ok := r.Get("c"); ok {
		t.Error("expected c to be missing")
	}

	names := r.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("list = %v", names)
	}
}

func TestRemoteErrorUnwrapsByCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{engine.ErrIndexRejected, "index_rejected"},
		{gate.ErrEngineFailed, "engine_failed"},
		{ErrMalformedResult, "malformed_result"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			reply := replyFor(1, nil, tt.err)
			if reply.Code != tt.code {
				t.Fatalf("code = %q", reply.Code)
			}
			err := &RemoteError{Method: "m", Code: reply.Code, Message: reply.Error}
			if err.Unwrap() != tt.err {
				t.Errorf("unwrap = %v", err.Unwrap())
			}
		})
	}

	plain := &RemoteError{Method: "m", Message: "boom"}
	if plain.Unwrap() != nil {
		t.Error("uncoded error should not unwrap")
	}
	if plain.Error() != "m: boom" {
		t.Errorf("error = %q", plain.Error())
	}
}

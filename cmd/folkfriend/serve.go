package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/hwellmann/folkfriend/bridge"
	"github.com/hwellmann/folkfriend/engine"
	"github.com/hwellmann/folkfriend/gate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for tune search",
	Long: `Start an HTTP server that exposes the engine as a JSON API.

Endpoints:
  GET    /version              Engine version, {"version":"..."}
  POST   /index                Load a tune index (request body is the index)
  POST   /query/name           Search by name, {"query":"..."}
  POST   /query/transcription  Search by contour, {"query":"..."}
  POST   /abc                  Render a contour, {"contour":"..."}
  GET    /health               Health check`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Int64("max-index", 64<<20, "Max index upload size in bytes")
	rootCmd.AddCommand(serveCmd)
}

type queryRequest struct {
	Query string `json:"query"`
}

type abcRequest struct {
	Contour string `json:"contour"`
}

type resultsResponse struct {
	Results    engine.ResultSet `json:"results"`
	DurationMs int64            `json:"duration_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type server struct {
	proxy    *bridge.Proxy
	timeout  time.Duration
	maxIndex int64
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("POST /index", s.handleIndex)
	mux.HandleFunc("POST /query/name", s.handleQuery(s.proxy.RunNameQuery))
	mux.HandleFunc("POST /query/transcription", s.handleQuery(s.proxy.RunTranscriptionQuery))
	mux.HandleFunc("POST /abc", s.handleABC)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *server) context(r *http.Request) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), s.timeout)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a call error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrIndexRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInvalidContour), errors.Is(err, bridge.ErrInvalidArgs):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, gate.ErrEngineFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func (s *server) handleVersion(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r)
	defer cancel()

	v, err := s.proxy.Version(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"version": v})
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxIndex))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
		return
	}

	ctx, cancel := s.context(r)
	defer cancel()

	if err := s.proxy.LoadIndexFromJSONObj(ctx, body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleQuery(query func(context.Context, string) (engine.ResultSet, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
			return
		}
		if req.Query == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query required"})
			return
		}

		ctx, cancel := s.context(r)
		defer cancel()

		start := time.Now()
		rs, err := query(ctx, req.Query)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resultsResponse{Results: rs, DurationMs: time.Since(start).Milliseconds()})
	}
}

func (s *server) handleABC(w http.ResponseWriter, r *http.Request) {
	var req abcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	ctx, cancel := s.context(r)
	defer cancel()

	abc, err := s.proxy.ContourToAbc(ctx, req.Contour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"abc": abc})
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	maxIndex, _ := cmd.Flags().GetInt64("max-index")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	p, err := connect(cmd)
	if err != nil {
		return err
	}

	s := &server{proxy: p, timeout: timeout, maxIndex: maxIndex}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "folkfriend server listening on %s\n", srv.Addr)
	bridge.Logger().Info("listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

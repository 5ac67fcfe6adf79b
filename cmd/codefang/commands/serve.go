package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillforge/modelrouter/pkg/cacheadapter"
	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/moderation"
	"github.com/quillforge/modelrouter/pkg/observability"
	"github.com/quillforge/modelrouter/pkg/ratelimit"
)

// moderationRequestBody is the POST /moderation wire body (spec §6).
type moderationRequestBody struct {
	Message string `json:"message"`
	Locale  string `json:"locale,omitempty"`
	Stream  bool   `json:"stream,omitempty"`
}

// moderationResponseBody is the 200 POST /moderation wire body: the
// ModerationResult flattened with cached/metrics, per spec §6.
type moderationResponseBody struct {
	llm.ModerationResult
	Cached  bool                      `json:"cached"`
	Metrics moderation.MetricsSnapshot `json:"metrics"`
}

type rateLimitedBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfter"`
}

type readEndpointBody struct {
	Metrics moderation.MetricsSnapshot `json:"metrics"`
	Cache   cacheInfo                  `json:"cache"`
}

type cacheInfo struct {
	Type string `json:"type"`
	Size int    `json:"size"`
}

// NewServeCommand builds the `serve` subcommand: the Moderation Service's
// HTTP endpoint (spec §6) plus a diagnostics server exposing
// /healthz, /readyz, /metrics.
func NewServeCommand() *cobra.Command {
	var (
		configPath     string
		addr           string
		diagnosticAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the moderation HTTP endpoint",
		Long:  `Start the Moderation Service HTTP server: POST/GET /moderation and GET /model-router/stats.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath, addr, diagnosticAddr)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", ":8081", "address to serve the moderation API on")
	cmd.Flags().StringVar(&diagnosticAddr, "diagnostics-addr", ":8082", "address to serve health/ready/metrics on")

	return cmd
}

func runServe(ctx context.Context, configPath, addr, diagnosticAddr string) error {
	a, err := bootstrap(configPath)
	if err != nil {
		return err
	}

	providers, err := initObservability(observability.ModeServe, false)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	diag, err := observability.NewDiagnosticsServer(diagnosticAddr, providers.Meter)
	if err != nil {
		return fmt.Errorf("start diagnostics server: %w", err)
	}
	defer diag.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/moderation", a.handleModeration)
	mux.HandleFunc("/model-router/stats", a.handleRouterStats)

	handler := observability.HTTPMiddleware(providers.Tracer, a.logger, mux)

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("moderation server starting", "addr", addr, "diagnostics_addr", diag.Addr())
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}

		return nil
	case <-serveCtx.Done():
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	}
}

func (a *app) handleModeration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.handleModerationPost(w, r)
	case http.MethodGet:
		a.handleModerationGet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *app) handleModerationPost(w http.ResponseWriter, r *http.Request) {
	var body moderationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})

		return
	}

	if body.Message == "" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "message is required"})

		return
	}

	req := moderation.Request{Message: body.Message, Locale: body.Locale, Stream: body.Stream}
	clientID := clientIdentifier(r)

	if body.Stream {
		a.handleModerationStream(w, r, clientID, req)

		return
	}

	resp, err := a.moderation.Moderate(r.Context(), clientID, req)
	if err != nil {
		var rle *moderation.RateLimitedError
		if errors.As(err, &rle) {
			writeRateLimited(w, rle)

			return
		}

		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})

		return
	}

	writeJSONStatus(w, http.StatusOK, moderationResponseBody{
		ModerationResult: resp.Result,
		Cached:           resp.Cached,
		Metrics:          a.moderation.Metrics(),
	})
}

func (a *app) handleModerationStream(w http.ResponseWriter, r *http.Request, clientID string, req moderation.Request) {
	chunks, err := a.moderation.ModerateStream(r.Context(), clientID, req)
	if err != nil {
		var rle *moderation.RateLimitedError
		if errors.As(err, &rle) {
			writeRateLimited(w, rle)

			return
		}

		writeJSONStatus(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})

		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)

	for chunk := range chunks {
		if chunk.Err != nil {
			fmt.Fprintf(w, "\nerror: %v\n", chunk.Err)

			break
		}

		fmt.Fprint(w, chunk.Delta)

		if canFlush {
			flusher.Flush()
		}

		if chunk.Done {
			break
		}
	}
}

func (a *app) handleModerationGet(w http.ResponseWriter, _ *http.Request) {
	info := cacheInfo{Type: "memory", Size: -1}

	switch c := a.cache.(type) {
	case *cacheadapter.MemoryCache:
		info = cacheInfo{Type: "memory", Size: c.Len()}
	case *cacheadapter.RemoteCache:
		info = cacheInfo{Type: "remote", Size: -1}
	}

	writeJSONStatus(w, http.StatusOK, readEndpointBody{Metrics: a.moderation.Metrics(), Cache: info})
}

func (a *app) handleRouterStats(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, http.StatusOK, a.projector.Project())
}

func writeRateLimited(w http.ResponseWriter, rle *moderation.RateLimitedError) {
	retryAfter := max((rle.Result.ResetAtMs-time.Now().UnixMilli())/1000, 0)
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rle.Policy.MaxRequests))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rle.Result.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", rle.Result.ResetAtMs))

	writeJSONStatus(w, http.StatusTooManyRequests, rateLimitedBody{
		Error:      "rate_limited",
		Message:    rle.Error(),
		RetryAfter: retryAfter,
	})
}

func writeJSONStatus(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func clientIdentifier(r *http.Request) string {
	return ratelimit.ClientID(r, "")
}

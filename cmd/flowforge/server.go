package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/config"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/internal/server"
	"github.com/flowforge-ai/flowforge/internal/telemetry"
	"github.com/flowforge-ai/flowforge/workflow"
)

// Server hosts the built-in workflows over HTTP: synchronous runs,
// run history, Prometheus metrics, and live event streaming over
// websockets.
type Server struct {
	cfg         *config.Config
	logger      *zap.Logger
	otel        *telemetry.Providers
	checkpoints *workflow.CheckpointManager

	httpManager *server.Manager
	collector   *metrics.Collector
	metricsSink *metrics.Sink
	history     workflow.HistoryStore
	runner      *workflow.InProcessRunner
	workflows   map[string]*workflow.GraphWorkflow
}

// NewServer creates the server. Workflows are the built-in demo set.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers, checkpoints *workflow.CheckpointManager) *Server {
	return &Server{
		cfg:         cfg,
		logger:      logger,
		otel:        otel,
		checkpoints: checkpoints,
		history:     workflow.NewMemoryHistoryStore(),
		runner:      workflow.NewInProcessRunner(logger),
		workflows:   builtinWorkflows(),
	}
}

// Start wires metrics and routes, then begins serving.
func (s *Server) Start() error {
	s.collector = metrics.NewCollector("flowforge", prometheus.DefaultRegisterer, s.logger)
	s.metricsSink = metrics.NewSink(s.collector)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/workflows", s.handleWorkflows)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/runs/stream", s.handleStream)

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("server started",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Int("workflows", len(s.workflows)),
	)
	return nil
}

// WaitForShutdown blocks until a signal or serve failure, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops the HTTP server and flushes telemetry.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown error", zap.Error(err))
	}
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

func (s *Server) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type info struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	list := make([]info, 0, len(s.workflows))
	for _, name := range workflowNames(s.workflows) {
		list = append(list, info{Name: name, Description: s.workflows[name].Description()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflows": list})
}

type runRequest struct {
	Workflow string `json:"workflow"`
	Input    string `json:"input"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListRuns(w, r)
	case http.MethodPost:
		s.handleStartRun(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.history.List(r.URL.Query().Get("workflow"), 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	wf, ok := s.workflows[req.Workflow]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("unknown workflow: %s", req.Workflow),
		})
		return
	}

	ctx := workflow.WithEventSink(r.Context(), s.metricsSink)
	out, err := s.runner.RunWithOptions(ctx, wf, req.Input, workflow.RunOptions{
		ThreadID:    req.ThreadID,
		Checkpoints: s.checkpoints,
		History:     s.history,
	})
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow": req.Workflow,
		"output":   out,
	})
}

// handleStream upgrades to a websocket, reads one run request, and
// streams the run's events as JSON messages, ending with the result.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	var req runRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid run request")
		return
	}

	wf, ok := s.workflows[req.Workflow]
	if !ok {
		wsjson.Write(ctx, conn, map[string]string{"error": "unknown workflow: " + req.Workflow})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	sink := workflow.NewChannelSink(s.cfg.Workflow.EventBuffer)
	runCtx := workflow.WithEventSink(ctx, workflow.NewMultiSink(sink, s.metricsSink))

	// Forward events while the run is in flight. A write failure means
	// the client went away; cancel the run.
	runCtx, cancel := context.WithCancel(runCtx)
	defer cancel()

	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for event := range sink.Events() {
			if err := wsjson.Write(ctx, conn, map[string]any{"event": event}); err != nil {
				cancel()
				return
			}
		}
	}()

	out, err := s.runner.RunWithOptions(runCtx, wf, req.Input, workflow.RunOptions{
		ThreadID:    req.ThreadID,
		Checkpoints: s.checkpoints,
		History:     s.history,
	})
	sink.Close()
	<-forwarded

	result := map[string]any{"workflow": req.Workflow}
	if err != nil {
		result["error"] = err.Error()
	} else {
		result["output"] = out
	}
	if err := wsjson.Write(ctx, conn, result); err == nil {
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  5 * time.Second,
	})
}

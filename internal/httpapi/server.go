package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/chatflow/orchestrator/internal/config"
	"github.com/chatflow/orchestrator/internal/metrics"
	"github.com/chatflow/orchestrator/internal/models"
	"github.com/chatflow/orchestrator/internal/streaming"
	"github.com/chatflow/orchestrator/internal/temporal"
)

// RulesSource supplies the auto-approval rules given to newly started approval workflows.
type RulesSource interface {
	Rules() []models.AutoApprovalRule
}

// Server is the HTTP surface external callers use to drive workflows.
type Server struct {
	engine   *temporal.Client
	events   *streaming.Manager
	rules    RulesSource
	approval config.ApprovalConfig
	auth     *Authenticator
	limiter  *clientLimiter
	logger   *zap.Logger
}

// Options wires the server. Events and Rules may be nil.
type Options struct {
	Engine   *temporal.Client
	Events   *streaming.Manager
	Rules    RulesSource
	HTTP     config.HTTPConfig
	Approval config.ApprovalConfig
	Logger   *zap.Logger
}

func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   opts.Engine,
		events:   opts.Events,
		rules:    opts.Rules,
		approval: opts.Approval,
		auth:     NewAuthenticator(opts.HTTP.AuthToken, opts.HTTP.JWTSecret),
		limiter:  newClientLimiter(opts.HTTP.RateLimit, opts.HTTP.RateBurst),
		logger:   logger,
	}
}

// RegisterRoutes mounts every /api route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "POST /api/chat/start", s.handleStartChat)
	s.handle(mux, "POST /api/chat/message", s.handleAddMessage)
	s.handle(mux, "POST /api/chat/model", s.handleUpdateModel)
	s.handle(mux, "GET /api/chat/model", s.handleCurrentModel)
	s.handle(mux, "GET /api/chat/conversation", s.handleConversation)

	s.handle(mux, "POST /api/approvals/request", s.handleRequestApproval)
	s.handle(mux, "POST /api/approvals/approve", s.handleApprove)
	s.handle(mux, "GET /api/approvals/pending", s.handlePending)
	s.handle(mux, "GET /api/approvals/history", s.handleHistory)

	s.handle(mux, "POST /api/toolchain/start", s.handleStartToolChain)
	s.handle(mux, "POST /api/toolchain/tools", s.handleAddTool)
	s.handle(mux, "POST /api/toolchain/approve", s.handleApproveTool)
	s.handle(mux, "GET /api/toolchain/state", s.handleToolChainState)

	s.handle(mux, "GET /api/workflows/describe", s.handleDescribe)

	s.handle(mux, "GET /api/events", s.handleWS)
	s.handle(mux, "GET /api/events/sse", s.handleSSE)
	s.handle(mux, "POST /api/events/publish", s.handlePublish)
}

// Handler returns a mux serving only the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	h = s.limiter.middleware(h)
	h = s.auth.Middleware(h)
	mux.Handle(pattern, instrument(pattern, s.logger, h))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush and Hijack keep streaming and websocket upgrades working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func instrument(route string, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		logger.Debug("HTTP request",
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}

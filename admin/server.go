// Package admin serves an operator view of the action layer: the current
// fences, recent actions and circuit breaker state.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chflow"
	"chflow/circuit"
	"chflow/filterpanel"
	"chflow/store"
)

// Server 管理服务器
type Server struct {
	addr     string
	store    *store.Store
	breaker  circuit.Breaker
	actions  *ActionLog
	gatherer prometheus.Gatherer
	router   chi.Router
	server   *http.Server

	mu      sync.Mutex
	running bool
}

// ServerOption 配置选项
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithStore sets the store whose fences and state are exposed.
func WithStore(st *store.Store) ServerOption {
	return func(s *Server) {
		s.store = st
	}
}

// WithBreaker sets the circuit breaker manager.
func WithBreaker(b circuit.Breaker) ServerOption {
	return func(s *Server) {
		s.breaker = b
	}
}

// WithActionLog sets the action log.
func WithActionLog(l *ActionLog) ServerOption {
	return func(s *Server) {
		s.actions = l
	}
}

// WithGatherer exposes g on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewServer 创建管理服务器
func NewServer(opts ...ServerOption) *Server {
	s := &Server{addr: ":8080"}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/fences", s.handleFences)
	r.Get("/api/state", s.handleState)
	r.Get("/api/actions", s.handleActions)
	r.Get("/api/circuit-breakers", s.handleCircuitBreakers)
	r.Post("/api/circuit-breakers/{service}/reset", s.handleResetCircuitBreaker)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// Start 启动服务器
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	return srv.ListenAndServe()
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.server
	s.mu.Unlock()

	return srv.Shutdown(ctx)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ============================================================================
// Responses
// ============================================================================

// APIResponse 统一API响应格式
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError API错误信息
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeInternalError   = "INTERNAL_ERROR"
	ErrCodeNotConfigured   = "NOT_CONFIGURED"
	ErrCodeServiceNotFound = "SERVICE_NOT_FOUND"
)

// FenceInfo 围栏信息
type FenceInfo struct {
	Category string     `json:"category"`
	Key      string     `json:"key,omitempty"`
	Started  bool       `json:"started"`
	Loading  bool       `json:"loading"`
	Failed   bool       `json:"failed"`
	Stale    int64      `json:"stale"`
	Updated  *time.Time `json:"updated_at,omitempty"`
}

// MutationInfo 变更状态
type MutationInfo struct {
	Kind    string `json:"kind"`
	Key     string `json:"key"`
	Pending bool   `json:"pending"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// StateResponse 状态响应
type StateResponse struct {
	Mutations      []MutationInfo `json:"mutations"`
	UploadProgress float64        `json:"upload_progress"`
	OpenFeedback   []int64        `json:"open_feedback"`
	SearchText     string         `json:"search_text,omitempty"`
	EnabledTracks  []string       `json:"enabled_tracks"`
}

// ActionsListResponse 动作列表响应
type ActionsListResponse struct {
	Actions []LoggedAction `json:"actions"`
	Total   int            `json:"total"`
	Types   []string       `json:"types"`
}

// CircuitBreakerInfo 熔断器信息
type CircuitBreakerInfo struct {
	Service              string `json:"service"`
	State                string `json:"state"`
	Requests             int64  `json:"requests"`
	TotalSuccesses       int64  `json:"total_successes"`
	TotalFailures        int64  `json:"total_failures"`
	ConsecutiveSuccesses int64  `json:"consecutive_successes"`
	ConsecutiveFailures  int64  `json:"consecutive_failures"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Error: &APIError{Code: code, Message: message},
	})
}

// ============================================================================
// Handlers
// ============================================================================

// handleFences GET /api/fences
func (s *Server) handleFences(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "store not configured")
		return
	}

	state := s.store.Snapshot()
	fences := make([]FenceInfo, 0, len(chflow.Categories))
	for _, cat := range chflow.Categories {
		key, ok, err := s.store.Fences().Current(r.Context(), cat)
		if err != nil {
			writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
			return
		}

		slot := state.Slots[cat]
		info := FenceInfo{
			Category: string(cat),
			Key:      string(key),
			Started:  ok,
			Loading:  slot.Loading,
			Failed:   slot.Err != nil,
			Stale:    state.Stale[cat],
		}
		if !slot.UpdatedAt.IsZero() {
			t := slot.UpdatedAt
			info.Updated = &t
		}
		fences = append(fences, info)
	}

	writeSuccess(w, fences)
}

// handleState GET /api/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "store not configured")
		return
	}

	state := s.store.Snapshot()
	resp := StateResponse{
		Mutations:      []MutationInfo{},
		UploadProgress: state.UploadProgress,
		OpenFeedback:   []int64{},
		SearchText:     state.FilterPanel.SearchText,
		EnabledTracks:  []string{},
	}
	for _, kind := range []chflow.MutationKind{chflow.MutationRegister, chflow.MutationUnregister, chflow.MutationSubmit} {
		m, ok := state.Mutations[kind]
		if !ok {
			continue
		}
		info := MutationInfo{Kind: string(kind), Key: string(m.Key), Pending: m.Pending, Done: m.Done}
		if m.Err != nil {
			info.Error = m.Err.Error()
		}
		resp.Mutations = append(resp.Mutations, info)
	}
	for id, open := range state.CheckpointFeedback {
		if open {
			resp.OpenFeedback = append(resp.OpenFeedback, id)
		}
	}
	resp.EnabledTracks = append(resp.EnabledTracks, filterpanel.MapStateToProps(state.FilterPanel).EnabledTracks...)
	sort.Slice(resp.OpenFeedback, func(i, j int) bool { return resp.OpenFeedback[i] < resp.OpenFeedback[j] })

	writeSuccess(w, resp)
}

// handleActions GET /api/actions
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if s.actions == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "action log not configured")
		return
	}

	filter, err := parseActionFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	}

	writeSuccess(w, ActionsListResponse{
		Actions: s.actions.List(filter),
		Total:   s.actions.Count(filter),
		Types:   s.actions.Types(),
	})
}

func parseActionFilter(r *http.Request) (ActionFilter, error) {
	q := r.URL.Query()
	filter := ActionFilter{
		Type:      q.Get("type"),
		RequestID: q.Get("request_id"),
		Key:       q.Get("key"),
		Limit:     100,
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset %q", v)
		}
		filter.Offset = n
	}
	return filter, nil
}

// handleCircuitBreakers GET /api/circuit-breakers
func (s *Server) handleCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "circuit breaker not configured")
		return
	}

	services := s.breaker.Services()
	infos := make([]CircuitBreakerInfo, 0, len(services))
	for _, svc := range services {
		cb := s.breaker.Get(svc)
		c := cb.Counts()
		infos = append(infos, CircuitBreakerInfo{
			Service:              svc,
			State:                cb.State().String(),
			Requests:             c.Requests,
			TotalSuccesses:       c.TotalSuccesses,
			TotalFailures:        c.TotalFailures,
			ConsecutiveSuccesses: c.ConsecutiveSuccesses,
			ConsecutiveFailures:  c.ConsecutiveFailures,
		})
	}

	writeSuccess(w, infos)
}

// handleResetCircuitBreaker POST /api/circuit-breakers/{service}/reset
func (s *Server) handleResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if s.breaker == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotConfigured, "circuit breaker not configured")
		return
	}

	service := chi.URLParam(r, "service")
	known := false
	for _, svc := range s.breaker.Services() {
		if svc == service {
			known = true
			break
		}
	}
	if !known {
		writeError(w, http.StatusNotFound, ErrCodeServiceNotFound, fmt.Sprintf("熔断器 %s 不存在", service))
		return
	}

	s.breaker.Get(service).Reset()
	writeSuccess(w, map[string]string{"message": fmt.Sprintf("熔断器 %s 已重置", service)})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nidhogg/taskforce/internal/agent"
	"github.com/nidhogg/taskforce/internal/health"
	"github.com/nidhogg/taskforce/internal/orchestrator"
	"github.com/nidhogg/taskforce/internal/store"
	"github.com/nidhogg/taskforce/internal/tool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Services are the runtime components the API exposes.
type Services struct {
	Deps          agent.Deps
	Catalog       *agent.Catalog
	General       *agent.Agent
	Router        *agent.RouterAgent
	Supervisor    *orchestrator.Supervisor
	Batch         *orchestrator.BatchRunner
	Storage       store.ConversationStorage
	Monitor       *health.Monitor
	Gatherer      prometheus.Gatherer
	MaxIterations int
	// SessionCache bounds the live sessions kept between requests.
	SessionCache int
}

const defaultSessionCache = 256

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	svc      Services
	sessions *lru.Cache[string, *agent.Session]
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, logger *zap.Logger) *Handler {
	if svc.MaxIterations <= 0 {
		svc.MaxIterations = agent.DefaultMaxIterations
	}
	if svc.SessionCache <= 0 {
		svc.SessionCache = defaultSessionCache
	}
	sessions, _ := lru.New[string, *agent.Session](svc.SessionCache)
	return &Handler{
		svc:      svc,
		sessions: sessions,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/tools", h.listTools)
		r.Get("/agents", h.listAgents)
		r.Post("/agents/{name}/run", h.runAgent)

		r.Post("/run", h.run)
		r.Post("/route", h.route)
		r.Post("/orchestrate", h.orchestrate)
		r.Post("/batch", h.batch)

		// Session routes
		r.Get("/sessions", h.listSessions)
		r.Get("/sessions/{id}", h.getSession)
		r.Delete("/sessions/{id}", h.deleteSession)
		r.Post("/sessions/{id}/messages", h.sendMessage)
	})

	if h.svc.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(h.svc.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if h.svc.Monitor != nil {
		if !h.svc.Monitor.Healthy() {
			body["status"] = "degraded"
		}
		body["collaborators"] = h.svc.Monitor.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) listTools(w http.ResponseWriter, r *http.Request) {
	if h.svc.Deps.Tools == nil {
		writeJSON(w, http.StatusOK, []tool.Metadata{})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Deps.Tools.List())
}

type agentInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tools       []string `json:"tools"`
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	if h.svc.Catalog == nil {
		writeJSON(w, http.StatusOK, []agentInfo{})
		return
	}
	list := h.svc.Catalog.List()
	out := make([]agentInfo, 0, len(list))
	for _, a := range list {
		out = append(out, agentInfo{Name: a.Name(), Description: a.Description(), Tools: a.ToolNames()})
	}
	writeJSON(w, http.StatusOK, out)
}

type taskRequest struct {
	Task          string          `json:"task"`
	Context       json.RawMessage `json:"context,omitempty"`
	MaxIterations int             `json:"max_iterations,omitempty"`
}

func (h *Handler) decodeTask(w http.ResponseWriter, r *http.Request) (taskRequest, bool) {
	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return req, false
	}
	if req.Task == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task is required"})
		return req, false
	}
	if req.MaxIterations <= 0 {
		req.MaxIterations = h.svc.MaxIterations
	}
	return req, true
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTask(w, r)
	if !ok {
		return
	}
	if h.svc.General == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "agent not initialized"})
		return
	}
	resp := h.svc.General.Execute(r.Context(), req.Task, req.MaxIterations)
	writeJSON(w, http.StatusOK, agent.ToResult(resp))
}

func (h *Handler) runAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, ok := h.decodeTask(w, r)
	if !ok {
		return
	}
	if h.svc.Catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "agents not initialized"})
		return
	}
	a, found := h.svc.Catalog.Get(name)
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	resp := a.ExecuteWithContext(r.Context(), req.Task, req.Context, req.MaxIterations)
	writeJSON(w, http.StatusOK, agent.ToResult(resp))
}

func (h *Handler) route(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTask(w, r)
	if !ok {
		return
	}
	if h.svc.Router == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "router not initialized"})
		return
	}
	resp := h.svc.Router.Route(r.Context(), req.Task, req.MaxIterations)
	writeJSON(w, http.StatusOK, agent.ToResult(resp))
}

func (h *Handler) orchestrate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeTask(w, r)
	if !ok {
		return
	}
	if h.svc.Supervisor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "supervisor not initialized"})
		return
	}
	resp := h.svc.Supervisor.Orchestrate(r.Context(), req.Task)
	writeJSON(w, http.StatusOK, agent.ToResult(resp))
}

type batchRequest struct {
	Tasks         []string `json:"tasks"`
	MaxIterations int      `json:"max_iterations,omitempty"`
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Tasks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tasks are required"})
		return
	}
	if h.svc.Batch == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "batch runner not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Batch.Run(r.Context(), req.Tasks, req.MaxIterations))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if h.svc.Storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not initialized"})
		return
	}
	ids, err := h.svc.Storage.ListSessions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

type sessionView struct {
	ID       string          `json:"id"`
	Messages []store.Message `json:"messages"`
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.svc.Storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not initialized"})
		return
	}
	if err := store.ValidateSessionID(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	exists, err := h.svc.Storage.Exists(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	history, err := h.svc.Storage.Load(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if history == nil {
		history = []store.Message{}
	}
	writeJSON(w, http.StatusOK, sessionView{ID: id, Messages: history})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.svc.Storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not initialized"})
		return
	}
	if err := store.ValidateSessionID(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.mu.Lock()
	h.sessions.Remove(id)
	h.mu.Unlock()
	if err := h.svc.Storage.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type messageRequest struct {
	Message       string `json:"message"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}
	if h.svc.Storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage not initialized"})
		return
	}

	sess, err := h.session(r, id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrInvalidSessionID) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	reply, err := sess.SendWithLimit(r.Context(), req.Message, req.MaxIterations)
	if err != nil {
		h.logger.Error("session send failed", zap.String("session", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// session returns the live session for id, opening it from storage once.
func (h *Handler) session(r *http.Request, id string) (*agent.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions.Get(id); ok {
		return s, nil
	}
	s, err := agent.OpenSession(r.Context(), id, h.svc.Storage, h.svc.Deps, h.svc.MaxIterations)
	if err != nil {
		return nil, err
	}
	h.sessions.Add(id, s)
	return s, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

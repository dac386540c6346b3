package httpx

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hullhost/hullhost/internal/domain"
	"github.com/hullhost/hullhost/internal/fleet/aggregator"
	"github.com/hullhost/hullhost/internal/fleet/billing"
	"github.com/hullhost/hullhost/internal/fleet/registry"
	"github.com/hullhost/hullhost/internal/fleet/scaling"
	"github.com/hullhost/hullhost/internal/fleet/traffic"
	"github.com/hullhost/hullhost/internal/repository"
	"github.com/hullhost/hullhost/internal/service/auth"
	"github.com/hullhost/hullhost/internal/service/image"
	"github.com/hullhost/hullhost/internal/ws"
)

// Router wires HTTP endpoints to the fleet subsystems and services.
type Router struct {
	mux          *http.ServeMux
	logger       *slog.Logger
	auth         auth.Service
	images       image.Service
	registry     *registry.Registry
	scaling      *scaling.Controller
	traffic      *traffic.Provider
	billing      *billing.Engine
	fleet        *aggregator.Aggregator
	hub          *ws.Hub
	upgrader     websocket.Upgrader
	limiter      RateLimiter
	serviceToken string
	dbHealth     func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	rateLimitService   = 600
	healthCheckTimeout = 2 * time.Second
	maxContainerBatch  = 100
)

// Deps bundles the router's collaborators.
type Deps struct {
	Auth         auth.Service
	Images       image.Service
	Registry     *registry.Registry
	Scaling      *scaling.Controller
	Traffic      *traffic.Provider
	Billing      *billing.Engine
	Fleet        *aggregator.Aggregator
	Hub          *ws.Hub
	Limiter      RateLimiter
	ServiceToken string
	DBHealth     func(context.Context) error
}

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, deps Deps) *Router {
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     deps.Auth,
		images:   deps.Images,
		registry: deps.Registry,
		scaling:  deps.Scaling,
		traffic:  deps.Traffic,
		billing:  deps.Billing,
		fleet:    deps.Fleet,
		hub:      deps.Hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:      deps.Limiter,
		serviceToken: strings.TrimSpace(deps.ServiceToken),
		dbHealth:     deps.DBHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.hub == nil {
		r.hub = ws.NewHub()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/auth/signup", r.audit("/auth/signup", r.withRateLimit("/auth/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/auth/login", r.audit("/auth/login", r.withRateLimit("/auth/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/images", r.audit("/images", r.requireAuth(r.handleImages)))
	r.mux.HandleFunc("/images/", r.audit("/images/{id}", r.handleImageSubroutes))
	r.mux.HandleFunc("/containers", r.audit("/containers", r.handlerAuthRate("/containers", rateLimitUserWrite, rateWindowDefault, r.handleContainers)))
	r.mux.HandleFunc("/containers/", r.audit("/containers/{id}", r.handlerAuthRate("/containers/{id}", rateLimitUserWrite, rateWindowDefault, r.handleContainerSubroutes)))
	r.mux.HandleFunc("/bi/system", r.audit("/bi/system", r.handlerAuthRate("/bi/system", rateLimitUserRead, rateWindowDefault, r.handleSystemRollup)))
	r.mux.HandleFunc("/ws/fleet", r.audit("/ws/fleet", r.handlerAuthRate("/ws/fleet", rateLimitWebsocket, rateWindowRealtime, r.handleFleetWS)))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Signup(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, tokens, err := r.auth.Login(req.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

func (r *Router) handleImages(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for images route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	switch req.Method {
	case http.MethodPost:
		r.withRateLimit("/images", rateLimitUserWrite, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleImageCreate(w, req, info)
		})(w, req)
	case http.MethodGet:
		r.withRateLimit("/images", rateLimitUserRead, rateWindowDefault, r.rateLimitKeyUser, func(w http.ResponseWriter, req *http.Request) {
			r.handleImageList(w, req, info)
		})(w, req)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleImageCreate(w http.ResponseWriter, req *http.Request, info authInfo) {
	var payload struct {
		Name         string  `json:"name"`
		InnerPort    int     `json:"inner_port"`
		MinReplicas  int     `json:"min_replicas"`
		MaxReplicas  int     `json:"max_replicas"`
		PaymentLimit float64 `json:"payment_limit"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	img, err := r.images.Register(req.Context(), image.CreateInput{
		OwnerID:      info.UserID,
		Name:         payload.Name,
		InnerPort:    payload.InnerPort,
		MinReplicas:  payload.MinReplicas,
		MaxReplicas:  payload.MaxReplicas,
		PaymentLimit: payload.PaymentLimit,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := r.scaling.Reconcile(req.Context(), img.ID, img.MinReplicas)
	if err != nil {
		r.logger.Error("initial fleet bootstrap failed", "image_id", img.ID, "error", err)
		writeJSON(w, http.StatusCreated, map[string]any{"image": img})
		return
	}
	r.hub.Publish("scaled", img.ID, result)
	writeJSON(w, http.StatusCreated, map[string]any{
		"image":     img,
		"bootstrap": result,
	})
}

func (r *Router) handleImageList(w http.ResponseWriter, req *http.Request, info authInfo) {
	images, err := r.images.List(req.Context(), info.UserID, info.IsAdmin)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := r.fleet.ViewAll(req.Context(), images, r.resolveOwner)
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handleImageSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/images/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" {
		r.notFound(w)
		return
	}
	imageID := parts[0]
	switch parts[1] {
	case "fleet":
		r.userImageRoute("/images/{id}/fleet", rateLimitUserRead, imageID, r.handleImageFleet)(w, req)
	case "scale":
		r.userImageRoute("/images/{id}/scale", rateLimitUserWrite, imageID, r.handleImageScale)(w, req)
	case "payment-limit":
		r.userImageRoute("/images/{id}/payment-limit", rateLimitUserWrite, imageID, r.handlePaymentLimit)(w, req)
	case "traffic":
		r.serviceImageRoute("/images/{id}/traffic", imageID, r.handleTrafficReport)(w, req)
	case "usage":
		r.serviceImageRoute("/images/{id}/usage", imageID, r.handleUsageReport)(w, req)
	default:
		r.notFound(w)
	}
}

type imageHandler func(w http.ResponseWriter, req *http.Request, img *domain.Image)

// userImageRoute authenticates the caller, applies the user rate limit
// and resolves the image with an ownership check.
func (r *Router) userImageRoute(route string, limit int, imageID string, next imageHandler) http.HandlerFunc {
	return r.handlerAuthRate(route, limit, rateWindowDefault, func(w http.ResponseWriter, req *http.Request) {
		img, ok := r.authorizedImage(w, req, imageID)
		if !ok {
			return
		}
		next(w, req, img)
	})
}

// serviceImageRoute validates the collaborator service token and resolves
// the image without ownership scoping.
func (r *Router) serviceImageRoute(route string, imageID string, next imageHandler) http.HandlerFunc {
	return r.withRateLimit(route, rateLimitService, rateWindowDefault, rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
		if !r.verifyServiceToken(w, req) {
			return
		}
		img, err := r.images.Get(req.Context(), imageID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				r.notFound(w)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		next(w, req, img)
	})
}

// authorizedImage loads the image and hides it from callers who neither
// own it nor hold the admin flag.
func (r *Router) authorizedImage(w http.ResponseWriter, req *http.Request, imageID string) (*domain.Image, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for image route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return nil, false
	}
	img, err := r.images.Get(req.Context(), imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.notFound(w)
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if img.OwnerID != info.UserID && !info.IsAdmin {
		r.notFound(w)
		return nil, false
	}
	return img, true
}

func (r *Router) handleImageFleet(w http.ResponseWriter, req *http.Request, img *domain.Image) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	view := r.fleet.View(req.Context(), *img, r.resolveOwner)
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleImageScale(w http.ResponseWriter, req *http.Request, img *domain.Image) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Target *int `json:"target"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Target == nil {
		writeError(w, http.StatusBadRequest, "target replica count is required")
		return
	}
	target := *payload.Target
	if target > img.MaxReplicas {
		writeError(w, http.StatusBadRequest, "target exceeds max_replicas")
		return
	}
	result, err := r.scaling.Reconcile(req.Context(), img.ID, target)
	if err != nil {
		if errors.Is(err, scaling.ErrInvalidTarget) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.hub.Publish("scaled", img.ID, result)
	writeJSON(w, http.StatusOK, map[string]any{
		"image_id": img.ID,
		"target":   target,
		"created":  result.Created,
		"removed":  result.Removed,
	})
}

func (r *Router) handlePaymentLimit(w http.ResponseWriter, req *http.Request, img *domain.Image) {
	switch req.Method {
	case http.MethodPut:
		var payload struct {
			Limit *float64 `json:"limit"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.Limit == nil {
			writeError(w, http.StatusBadRequest, "limit is required")
			return
		}
		updated, err := r.images.SetPaymentLimit(req.Context(), img.ID, *payload.Limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.billing.SetLimit(img.ID, *payload.Limit)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"status":  r.limitStatus(updated),
		})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, r.limitStatus(img))
	default:
		r.methodNotAllowed(w)
	}
}

// limitStatus reports the live billing position overlaid with the
// stored policy. A limit configured before the first usage report only
// exists on the image row, so the billing record's missing limit is
// filled in from there.
func (r *Router) limitStatus(img *domain.Image) domain.PaymentLimitStatus {
	status, ok := r.billing.LimitStatus(img.ID)
	if !ok {
		status = domain.PaymentLimitStatus{ImageID: img.ID}
	}
	if status.Limit == nil && img.PaymentLimit > 0 {
		limit := img.PaymentLimit
		status.Limit = &limit
		status.LimitReached = status.CurrentCost >= limit
		remaining := limit - status.CurrentCost
		if remaining < 0 {
			remaining = 0
		}
		status.Remaining = &remaining
	}
	return status
}

func (r *Router) handleTrafficReport(w http.ResponseWriter, req *http.Request, img *domain.Image) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Requests          int64              `json:"requests"`
		TotalRequests     *int64             `json:"total_requests"`
		RequestsPerSecond float64            `json:"requests_per_second"`
		GeoDistribution   map[string]float64 `json:"geographic_distribution"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.TotalRequests != nil || payload.GeoDistribution != nil {
		var total int64
		if payload.TotalRequests != nil {
			total = *payload.TotalRequests
		}
		r.traffic.Seed(img.ID, domain.TrafficSnapshot{
			TotalRequests:     total,
			RequestsPerSecond: payload.RequestsPerSecond,
			GeoDistribution:   payload.GeoDistribution,
		})
	} else {
		r.traffic.Record(img.ID, payload.Requests)
	}
	snap, err := r.traffic.Get(req.Context(), img.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.hub.Publish("traffic", img.ID, snap)
	writeJSON(w, http.StatusAccepted, snap)
}

func (r *Router) handleUsageReport(w http.ResponseWriter, req *http.Request, img *domain.Image) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var usage billing.Usage
	if err := json.NewDecoder(req.Body).Decode(&usage); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	record := r.billing.RecordUsage(img.ID, img.OwnerID, usage)
	r.hub.Publish("usage", img.ID, record)
	writeJSON(w, http.StatusAccepted, record)
}

func (r *Router) handleContainers(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		ImageID   string                `json:"image_id"`
		Count     int                   `json:"count"`
		Resources domain.ResourceLimits `json:"resources"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.ImageID) == "" {
		writeError(w, http.StatusBadRequest, "image_id is required")
		return
	}
	if payload.Count == 0 {
		payload.Count = 1
	}
	if payload.Count < 0 || payload.Count > maxContainerBatch {
		writeError(w, http.StatusBadRequest, "count must be between 1 and 100")
		return
	}
	img, ok := r.authorizedImage(w, req, payload.ImageID)
	if !ok {
		return
	}
	if img.Status != domain.ImageStatusReady {
		writeError(w, http.StatusBadRequest, "image is not ready")
		return
	}
	instances := make([]domain.ContainerInstance, 0, payload.Count)
	for i := 0; i < payload.Count; i++ {
		instances = append(instances, r.registry.Create(img.ID, payload.Resources))
	}
	writeJSON(w, http.StatusCreated, map[string]any{"instances": instances})
}

func (r *Router) handleContainerSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/containers/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 1 || parts[0] == "" {
		r.notFound(w)
		return
	}
	instanceID := parts[0]
	inst, ok := r.registry.Get(instanceID)
	if !ok {
		r.notFound(w)
		return
	}
	if _, ok := r.authorizedImage(w, req, inst.ImageID); !ok {
		return
	}
	if len(parts) == 1 {
		if req.Method != http.MethodDelete {
			r.methodNotAllowed(w)
			return
		}
		if !r.registry.Delete(instanceID) {
			r.notFound(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}
	if len(parts) != 2 {
		r.notFound(w)
		return
	}
	switch parts[1] {
	case "start":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		if !r.registry.Start(instanceID) {
			r.notFound(w)
			return
		}
	case "stop":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		if !r.registry.Stop(instanceID) {
			r.notFound(w)
			return
		}
	case "resources":
		if req.Method != http.MethodPut {
			r.methodNotAllowed(w)
			return
		}
		var partial domain.ResourceLimits
		if err := json.NewDecoder(req.Body).Decode(&partial); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if !r.registry.UpdateResources(instanceID, partial) {
			r.notFound(w)
			return
		}
	default:
		r.notFound(w)
		return
	}
	updated, ok := r.registry.Get(instanceID)
	if !ok {
		r.notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (r *Router) handleSystemRollup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for rollup route", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if !info.IsAdmin {
		writeError(w, http.StatusForbidden, "admin access required")
		return
	}
	writeJSON(w, http.StatusOK, r.billing.SystemRollup())
}

func (r *Router) handleFleetWS(w http.ResponseWriter, req *http.Request) {
	imageID := req.URL.Query().Get("image_id")
	if imageID == "" {
		writeError(w, http.StatusBadRequest, "image_id query parameter required")
		return
	}
	if _, ok := r.authorizedImage(w, req, imageID); !ok {
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.hub.Register(imageID, client)
	go func() {
		defer func() {
			r.hub.Unregister(imageID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) resolveOwner(ctx context.Context, ownerID string) (string, error) {
	return r.images.OwnerEmail(ctx, ownerID)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)
		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
			if info.IsAdmin {
				fields = append(fields, "admin", true)
			}
		} else if strings.HasSuffix(req.URL.Path, "/traffic") || strings.HasSuffix(req.URL.Path, "/usage") {
			actor = "service"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

// verifyServiceToken ensures collaborator reports include the configured secret.
func (r *Router) verifyServiceToken(w http.ResponseWriter, req *http.Request) bool {
	expected := r.serviceToken
	if expected == "" {
		r.logger.Error("service token not configured", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "service authentication misconfigured")
		return false
	}
	token := strings.TrimSpace(req.Header.Get("X-Service-Token"))
	if len(token) != len(expected) || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		r.logger.Warn("service token mismatch", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, "invalid service token")
		return false
	}
	return true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

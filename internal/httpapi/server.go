// Package httpapi serves the OneSky REST API and the chatbot websocket.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/onesky/internal/assistant"
	"github.com/ent0n29/onesky/internal/auth"
	"github.com/ent0n29/onesky/internal/config"
	"github.com/ent0n29/onesky/internal/gamification"
	"github.com/ent0n29/onesky/internal/logging"
	"github.com/ent0n29/onesky/internal/observability"
	"github.com/ent0n29/onesky/internal/platform"
	"github.com/ent0n29/onesky/internal/session"
	"github.com/ent0n29/onesky/internal/store"
)

// Store is the data layer behind the REST endpoints.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, u platform.User) (platform.User, error)
	Account(ctx context.Context, email string) (platform.User, error)
	UserIDByEmail(ctx context.Context, email string) (int64, error)

	FilteredEvents(ctx context.Context, f platform.EventFilter) ([]platform.Record, error)
	Locations(ctx context.Context) ([]string, error)
	EventByID(ctx context.Context, id int64) (platform.Record, error)
	RegisterForEvent(ctx context.Context, userID, eventID int64) error
	UpcomingEvents(ctx context.Context, userID int64, limit int) ([]platform.Record, error)
	CompletedEvents(ctx context.Context, userID int64, limit int) ([]platform.Record, error)
	UpcomingEventsCount(ctx context.Context, userID int64) (int, error)
	CompletedEventsCount(ctx context.Context, userID int64) (int, error)
	TotalHours(ctx context.Context, userID int64) (float64, error)

	AllTeams(ctx context.Context) ([]platform.Record, error)
	JoinedTeams(ctx context.Context, email string) ([]platform.Record, error)
	CreateTeam(ctx context.Context, ownerID int64, in store.NewTeam) (platform.Record, error)
	JoinTeam(ctx context.Context, userID, teamID int64, code string) error
	RegisterTeamForEvent(ctx context.Context, ownerID, teamID, eventID int64) error
	TeamEvents(ctx context.Context, email string) ([]platform.Record, error)

	AllBadges(ctx context.Context) ([]platform.Record, error)
	UserBadges(ctx context.Context, userID int64) ([]platform.Record, error)

	Leaderboard(ctx context.Context, limit int) ([]platform.LeaderboardEntry, error)
	RankOf(ctx context.Context, userID int64) (platform.LeaderboardEntry, error)
}

// Assistant answers chat messages.
type Assistant interface {
	Process(ctx context.Context, message, identity string) (assistant.Reply, error)
	ProcessStream(ctx context.Context, message, identity string, emit assistant.Emit) error
}

// Badges awards badges and reports progress.
type Badges interface {
	Award(ctx context.Context, userID int64) ([]platform.Record, error)
	Progress(ctx context.Context, userID int64) (gamification.Progress, error)
}

// Deps are the collaborators of a Server. Assistant and Badges may be nil.
type Deps struct {
	Config    config.Config
	Store     Store
	Tokens    *auth.TokenManager
	Assistant Assistant
	Badges    Badges
	Sessions  *session.Manager
	Metrics   *observability.Metrics
}

type Server struct {
	cfg       config.Config
	store     Store
	tokens    *auth.TokenManager
	assistant Assistant
	badges    Badges
	sessions  *session.Manager
	metrics   *observability.Metrics
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	log       zerolog.Logger

	// conns maps chat session ids to the cancel func of their socket.
	conns sync.Map
}

func New(d Deps) *Server {
	sessions := d.Sessions
	if sessions == nil {
		sessions = session.NewManager(d.Config.SessionInactivityTimeout)
	}
	s := &Server{
		cfg:       d.Config,
		store:     d.Store,
		tokens:    d.Tokens,
		assistant: d.Assistant,
		badges:    d.Badges,
		sessions:  sessions,
		metrics:   d.Metrics,
		validate:  newValidator(),
		log:       logging.Component("httpapi"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	sessions.SetExpireHook(func(sess *session.Session) {
		if cancel, ok := s.conns.Load(sess.ID); ok {
			cancel.(context.CancelFunc)()
		}
		s.metrics.ObserveSessionEvent("expired")
	})
	return s
}

// Sessions exposes the chat socket registry so the caller can supervise its
// janitor.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(s.corsOptions()))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/perf/chat", s.handlePerfChat)

		r.Group(func(r chi.Router) {
			r.Use(s.tokens.OptionalUser)
			r.Get("/events", s.handleListEvents)
			r.Get("/events/locations", s.handleLocations)
			r.Get("/events/{id}", s.handleGetEvent)
			r.Get("/teams", s.handleListTeams)
			r.Get("/badges", s.handleAllBadges)

			r.Group(func(r chi.Router) {
				if s.cfg.ChatRateLimit > 0 {
					r.Use(httprate.LimitByIP(s.cfg.ChatRateLimit, time.Minute))
				}
				r.Post("/chatbot/chat", s.handleChat)
				r.Get("/chatbot/ws", s.handleChatWS)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(s.tokens.RequireUser(s.unauthorized))
			r.Get("/me", s.handleMe)
			r.Post("/events/{id}/register", s.handleRegisterEvent)
			r.Post("/events/{id}/register-team", s.handleRegisterTeamEvent)
			r.Get("/teams/mine", s.handleMyTeams)
			r.Get("/teams/events", s.handleTeamEvents)
			r.Post("/teams", s.handleCreateTeam)
			r.Post("/teams/{id}/join", s.handleJoinTeam)
			r.Get("/badges/mine", s.handleMyBadges)
			r.Get("/badges/progress", s.handleBadgeProgress)
			r.Post("/badges/check", s.handleCheckBadges)
			r.Get("/dashboard", s.handleDashboard)
			r.Get("/leaderboard", s.handleLeaderboard)
			r.Get("/leaderboard/my-rank", s.handleMyRank)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"assistant":           s.assistant != nil,
		"active_chat_sockets": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("readiness check failed")
		respondError(w, http.StatusServiceUnavailable, "not_ready", "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients often omit Origin.
		return true
	}
	for _, allowed := range s.cfg.CORSOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) corsOptions() cors.Options {
	opts := cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	if s.cfg.AllowAnyOrigin {
		// Credentials rule out the "*" wildcard, so echo the origin back.
		opts.AllowedOrigins = nil
		opts.AllowOriginFunc = func(*http.Request, string) bool { return true }
	}
	return opts
}

const requestIDHeader = "X-Request-ID"

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		s.metrics.ObserveHTTP(route, r.Method, status)
		logging.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, _ *http.Request) {
	respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
}

// currentUser resolves the authenticated caller to a user id. It writes the
// error response itself and reports false on failure.
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (auth.Identity, int64, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		s.unauthorized(w, r)
		return auth.Identity{}, 0, false
	}
	userID, err := s.store.UserIDByEmail(r.Context(), id.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "user_not_found", "User not found")
			return auth.Identity{}, 0, false
		}
		s.internalError(w, r, "resolve user", err)
		return auth.Identity{}, 0, false
	}
	return id, userID, true
}

// optionalUserID is 0 for anonymous or unknown callers.
func (s *Server) optionalUserID(r *http.Request) int64 {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return 0
	}
	userID, err := s.store.UserIDByEmail(r.Context(), id.Email)
	if err != nil {
		return 0
	}
	return userID
}

// award runs the badge rules and never fails the request.
func (s *Server) award(ctx context.Context, userID int64) []platform.Record {
	if s.badges == nil {
		return nil
	}
	awarded, err := s.badges.Award(ctx, userID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("user_id", userID).Msg("badge awarding failed")
		return nil
	}
	return normalizeBadges(awarded)
}

// respondStoreError maps data-layer sentinels to HTTP statuses.
func (s *Server) respondStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", errorMessage(err))
	case errors.Is(err, store.ErrJoinCode):
		respondError(w, http.StatusForbidden, "invalid_join_code", "join code does not match")
	case errors.Is(err, store.ErrConflict):
		respondError(w, http.StatusConflict, "conflict", errorMessage(err))
	default:
		s.internalError(w, r, op, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logging.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("request failed")
	respondError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
}

// errorMessage drops the wrapped sentinel suffix from store errors.
func errorMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i > 0 {
		return msg[:i]
	}
	return msg
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// decodeValid decodes and validates a request body, answering 400 itself on
// failure.
func (s *Server) decodeValid(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", validationMessage(err))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

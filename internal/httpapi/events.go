package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/onesky/internal/assistant"
	"github.com/ent0n29/onesky/internal/platform"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func normalize(recs []platform.Record, fn func(platform.Record) platform.Record) []platform.Record {
	out := make([]platform.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fn(rec))
	}
	return out
}

func normalizeEvents(recs []platform.Record) []platform.Record {
	return normalize(recs, assistant.NormalizeEvent)
}

func normalizeBadges(recs []platform.Record) []platform.Record {
	return normalize(recs, assistant.NormalizeBadge)
}

func normalizeTeams(recs []platform.Record, userID int64) []platform.Record {
	return normalize(recs, func(rec platform.Record) platform.Record {
		return assistant.NormalizeTeam(rec, userID)
	})
}

// queryLimit reads ?limit=, clamped to [1, maxListLimit].
func queryLimit(r *http.Request, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("limit")))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxListLimit)
}

func queryDate(r *http.Request, key string) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	from, ok := queryDate(r, "start_date")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD")
		return
	}
	to, ok := queryDate(r, "end_date")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD")
		return
	}
	q := r.URL.Query()
	events, err := s.store.FilteredEvents(r.Context(), platform.EventFilter{
		Keyword:  strings.TrimSpace(q.Get("keyword")),
		Location: strings.TrimSpace(q.Get("location")),
		From:     from,
		To:       to,
		Limit:    queryLimit(r, defaultListLimit),
	})
	if err != nil {
		s.internalError(w, r, "list events", err)
		return
	}
	out := normalizeEvents(events)
	respondJSON(w, http.StatusOK, map[string]any{"events": out, "count": len(out)})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.store.Locations(r.Context())
	if err != nil {
		s.internalError(w, r, "list locations", err)
		return
	}
	if locations == nil {
		locations = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	event, err := s.store.EventByID(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, r, "get event", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"event": assistant.NormalizeEvent(event)})
}

func (s *Server) handleRegisterEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if err := s.store.RegisterForEvent(r.Context(), userID, eventID); err != nil {
		s.respondStoreError(w, r, "register for event", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":     "registered",
		"event_id":   eventID,
		"new_badges": s.award(r.Context(), userID),
	})
}

type registerTeamRequest struct {
	TeamID int64 `json:"team_id" validate:"required,gt=0"`
}

func (s *Server) handleRegisterTeamEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req registerTeamRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	if err := s.store.RegisterTeamForEvent(r.Context(), userID, req.TeamID, eventID); err != nil {
		s.respondStoreError(w, r, "register team for event", err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"status":   "registered",
		"event_id": eventID,
		"team_id":  req.TeamID,
	})
}

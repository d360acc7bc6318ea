package httpapi

import (
	"net/http"
	"time"

	"github.com/ent0n29/onesky/internal/platform"
)

const dashboardUpcomingLimit = 5

func (s *Server) handleAllBadges(w http.ResponseWriter, r *http.Request) {
	badges, err := s.store.AllBadges(r.Context())
	if err != nil {
		s.internalError(w, r, "all badges", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"badges": normalizeBadges(badges)})
}

func (s *Server) handleMyBadges(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	badges, err := s.store.UserBadges(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, "user badges", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"badges": normalizeBadges(badges)})
}

func (s *Server) handleBadgeProgress(w http.ResponseWriter, r *http.Request) {
	if s.badges == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "badges are not configured")
		return
	}
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	progress, err := s.badges.Progress(r.Context(), userID)
	if err != nil {
		s.internalError(w, r, "badge progress", err)
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCheckBadges(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	awarded := s.award(r.Context(), userID)
	if awarded == nil {
		awarded = []platform.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"new_badges": awarded, "count": len(awarded)})
}

type dashboardCounts struct {
	UpcomingEvents int `json:"upcoming_events"`
	Badges         int `json:"badges"`
}

type dashboardResponse struct {
	FirstName       string            `json:"first_name"`
	TotalHours      float64           `json:"total_hours"`
	EventsCompleted int               `json:"events_completed"`
	Counts          dashboardCounts   `json:"counts"`
	UpcomingEvents  []platform.Record `json:"upcoming_events"`
	Badges          []platform.Record `json:"badges"`
	AsOf            time.Time         `json:"as_of"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	resp := dashboardResponse{FirstName: id.FirstName, AsOf: time.Now().UTC()}

	var err error
	if resp.TotalHours, err = s.store.TotalHours(ctx, userID); err != nil {
		s.internalError(w, r, "dashboard hours", err)
		return
	}
	if resp.EventsCompleted, err = s.store.CompletedEventsCount(ctx, userID); err != nil {
		s.internalError(w, r, "dashboard completed", err)
		return
	}
	if resp.Counts.UpcomingEvents, err = s.store.UpcomingEventsCount(ctx, userID); err != nil {
		s.internalError(w, r, "dashboard upcoming count", err)
		return
	}
	upcoming, err := s.store.UpcomingEvents(ctx, userID, queryLimit(r, dashboardUpcomingLimit))
	if err != nil {
		s.internalError(w, r, "dashboard upcoming", err)
		return
	}
	badges, err := s.store.UserBadges(ctx, userID)
	if err != nil {
		s.internalError(w, r, "dashboard badges", err)
		return
	}
	resp.UpcomingEvents = normalizeEvents(upcoming)
	resp.Badges = normalizeBadges(badges)
	resp.Counts.Badges = len(badges)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.Leaderboard(r.Context(), queryLimit(r, defaultListLimit))
	if err != nil {
		s.internalError(w, r, "leaderboard", err)
		return
	}
	if entries == nil {
		entries = []platform.LeaderboardEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": entries})
}

func (s *Server) handleMyRank(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	entry, err := s.store.RankOf(r.Context(), userID)
	if err != nil {
		s.respondStoreError(w, r, "my rank", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"currentRank": entry.Rank, "entry": entry})
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/ent0n29/onesky/internal/assistant"
	"github.com/ent0n29/onesky/internal/auth"
	"github.com/ent0n29/onesky/internal/store"
)

type createTeamRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=1000"`
	Department  string `json:"department" validate:"max=100"`
	Capacity    int    `json:"capacity" validate:"omitempty,min=1,max=1000"`
}

type joinTeamRequest struct {
	JoinCode string `json:"join_code" validate:"required,max=32"`
}

func (s *Server) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.store.AllTeams(r.Context())
	if err != nil {
		s.internalError(w, r, "list teams", err)
		return
	}
	out := normalizeTeams(teams, s.optionalUserID(r))
	respondJSON(w, http.StatusOK, map[string]any{"teams": out, "count": len(out)})
}

func (s *Server) handleMyTeams(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	teams, err := s.store.JoinedTeams(r.Context(), id.Email)
	if err != nil {
		s.internalError(w, r, "joined teams", err)
		return
	}
	out := normalizeTeams(teams, userID)
	respondJSON(w, http.StatusOK, map[string]any{"teams": out, "count": len(out)})
}

func (s *Server) handleTeamEvents(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	events, err := s.store.TeamEvents(r.Context(), id.Email)
	if err != nil {
		s.internalError(w, r, "team events", err)
		return
	}
	out := normalizeEvents(events)
	respondJSON(w, http.StatusOK, map[string]any{"team_events": out, "count": len(out)})
}

func (s *Server) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req createTeamRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	team, err := s.store.CreateTeam(r.Context(), userID, store.NewTeam{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Department:  strings.TrimSpace(req.Department),
		Capacity:    req.Capacity,
	})
	if err != nil {
		s.respondStoreError(w, r, "create team", err)
		return
	}
	respondJSON(w, http.StatusCreated, assistant.NormalizeTeam(team, userID))
}

func (s *Server) handleJoinTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req joinTeamRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	_, userID, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.JoinCode))
	if err := s.store.JoinTeam(r.Context(), userID, teamID, code); err != nil {
		s.respondStoreError(w, r, "join team", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "joined", "team_id": teamID})
}

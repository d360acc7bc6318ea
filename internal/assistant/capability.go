package assistant

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/ent0n29/onesky/internal/llm"
)

// Capability names one data-retrieval operation the model may request.
type Capability string

const (
	CapUpcomingEvents  Capability = "get_my_upcoming_events"
	CapCompletedEvents Capability = "get_my_completed_events"
	CapSearchEvents    Capability = "search_events"
	CapMyTeams         Capability = "get_my_teams"
	CapListTeams       Capability = "list_teams"
	CapMyBadges        Capability = "get_my_badges"
	CapAvailableBadges Capability = "get_available_badges"
	CapMyStats         Capability = "get_my_stats"
	CapMyTeamEvents    Capability = "get_my_team_events"
)

// Kind is the shape of data a capability returns.
type Kind string

const (
	KindEvents     Kind = "events"
	KindTeams      Kind = "teams"
	KindBadges     Kind = "badges"
	KindImpact     Kind = "impact"
	KindTeamEvents Kind = "team_events"
	KindGeneral    Kind = "general"
)

// Result is the output of one capability call. Data is a []platform.Record
// for list kinds and a platform.Stats for impact.
type Result struct {
	Kind Kind
	Data any
}

// Arguments are the decoded JSON arguments of a tool call.
type Arguments map[string]any

var ErrMalformedArguments = errors.New("malformed tool arguments")

// ParseArguments decodes raw tool-call arguments. Blank input is an empty
// set; anything that is not a JSON object is an error.
func ParseArguments(raw string) (Arguments, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArguments, err)
	}
	if args == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedArguments)
	}
	return args, nil
}

// String returns the trimmed string argument, or "" when absent.
func (a Arguments) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// Int returns a positive integer argument or def.
func (a Arguments) Int(key string, def int) int {
	var n int
	switch v := a[key].(type) {
	case float64:
		n = int(v)
	case int:
		n = v
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		n = parsed
	default:
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

// Bool returns a boolean argument or def. Strings such as "false" are
// understood.
func (a Arguments) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	case float64:
		return v != 0
	default:
		return def
	}
}

func noParams() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

// Menu is the fixed set of tools offered on every first-pass request.
func Menu() []llm.Tool {
	return []llm.Tool{
		{
			Name:        string(CapUpcomingEvents),
			Description: "Get upcoming/registered volunteering events for the current logged-in user (events that haven't happened yet).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer", "description": "Maximum number of events to return", "default": 5},
				},
			},
		},
		{
			Name:        string(CapCompletedEvents),
			Description: "Get completed/past volunteering events the current user registered for and attended. Use this for 'completed events', 'past events', 'events I've done', 'history' or 'events I attended'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"limit": map[string]any{"type": "integer", "description": "Maximum number of events to return", "default": 50},
				},
			},
		},
		{
			Name:        string(CapSearchEvents),
			Description: "Search volunteering events by keyword, location and date range. Use this for general event discovery (not user-specific). Relative date expressions such as 'this weekend', 'next week', 'today' or 'tomorrow' may be passed directly.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keyword":  map[string]any{"type": "string"},
					"location": map[string]any{"type": "string"},
					"start_date": map[string]any{
						"type":        "string",
						"description": "Start date as YYYY-MM-DD, or one of 'today', 'tomorrow', 'this weekend', 'next weekend', 'this week', 'next week', 'next month'. Range expressions expand to their whole range.",
					},
					"end_date": map[string]any{
						"type":        "string",
						"description": "End date as YYYY-MM-DD or a relative expression. For date ranges provide both start_date and end_date.",
					},
					"limit":        map[string]any{"type": "integer", "description": "Max events", "default": 10},
					"use_semantic": map[string]any{"type": "boolean", "description": "Whether to use embedding-based search if available", "default": true},
				},
			},
		},
		{
			Name:        string(CapMyTeams),
			Description: "Get teams the current user is a member of.",
			Parameters:  noParams(),
		},
		{
			Name:        string(CapListTeams),
			Description: "List available teams on the platform. If the user is logged in, prefer showing teams they are NOT part of.",
			Parameters:  noParams(),
		},
		{
			Name:        string(CapMyBadges),
			Description: "Get badges earned by the current user.",
			Parameters:  noParams(),
		},
		{
			Name:        string(CapAvailableBadges),
			Description: "List badges the user has NOT earned yet.",
			Parameters:  noParams(),
		},
		{
			Name:        string(CapMyStats),
			Description: "Get volunteering impact stats (hours, completed events, upcoming events, badges) for the current user.",
			Parameters:  noParams(),
		},
		{
			Name:        string(CapMyTeamEvents),
			Description: "Get events that the user's teams are registered for.",
			Parameters:  noParams(),
		},
	}
}

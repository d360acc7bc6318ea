package memory

// Role identifies who produced a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one immutable entry of a conversation window.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"content"`
}

// DefaultWindowSize bounds how many turns are kept per identity.
const DefaultWindowSize = 10

package memory

import (
	"context"
	"strings"
	"sync"
)

// NameFetcher resolves the display name of an identity. An empty name with a
// nil error means the identity has none.
type NameFetcher func(ctx context.Context, identity string) (string, error)

// Store keeps bounded per-identity conversation windows and a display name
// cache for the lifetime of the process.
type Store struct {
	size int

	mu      sync.RWMutex
	windows map[string]*window

	namesMu sync.RWMutex
	names   map[string]string
}

type window struct {
	mu    sync.Mutex
	turns []Turn
	start int
	n     int
}

func NewStore(windowSize int) *Store {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Store{
		size:    windowSize,
		windows: make(map[string]*window),
		names:   make(map[string]string),
	}
}

// AppendTurn adds a turn to the identity's window, evicting the oldest once
// the window is full. Empty identities are ignored.
func (s *Store) AppendTurn(identity string, role Role, text string) {
	if strings.TrimSpace(identity) == "" {
		return
	}
	w := s.window(identity)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.n < len(w.turns) {
		w.turns[(w.start+w.n)%len(w.turns)] = Turn{Role: role, Text: text}
		w.n++
		return
	}
	w.turns[w.start] = Turn{Role: role, Text: text}
	w.start = (w.start + 1) % len(w.turns)
}

// RecentTurns returns the identity's window, oldest first.
func (s *Store) RecentTurns(identity string) []Turn {
	s.mu.RLock()
	w, ok := s.windows[identity]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Turn, 0, w.n)
	for i := 0; i < w.n; i++ {
		out = append(out, w.turns[(w.start+i)%len(w.turns)])
	}
	return out
}

// CachedOrFetchDisplayName returns the cached name or asks fetch once.
// Failures and empty names are not cached, so a later call retries.
func (s *Store) CachedOrFetchDisplayName(ctx context.Context, identity string, fetch NameFetcher) string {
	if strings.TrimSpace(identity) == "" {
		return ""
	}
	s.namesMu.RLock()
	name, ok := s.names[identity]
	s.namesMu.RUnlock()
	if ok {
		return name
	}
	if fetch == nil {
		return ""
	}

	name, err := fetch(ctx, identity)
	name = strings.TrimSpace(name)
	if err != nil || name == "" {
		return ""
	}

	s.namesMu.Lock()
	defer s.namesMu.Unlock()
	if cached, ok := s.names[identity]; ok {
		return cached
	}
	s.names[identity] = name
	return name
}

func (s *Store) window(identity string) *window {
	s.mu.RLock()
	w, ok := s.windows[identity]
	s.mu.RUnlock()
	if ok {
		return w
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[identity]; ok {
		return w
	}
	w = &window{turns: make([]Turn, s.size)}
	s.windows[identity] = w
	return w
}

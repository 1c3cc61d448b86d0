// Package persona holds the agent persona used to phrase nudges.
package persona

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const DefaultDescription = "You are a fun, encouraging Gen Z/millennial assistant who speaks casually but is super supportive. " +
	"You use modern slang, emojis, and keep things light while being genuinely helpful. " +
	"You can manage emails, Github, and Google Docs."

const taskSuffix = " When given multi-step tasks, execute them step by step using available tools. Always complete the entire requested task."

var ErrEmptyDescription = errors.New("persona description is empty")

// Store persists the description. Load reports ok=false when nothing has
// been saved yet.
type Store interface {
	Load(ctx context.Context) (description string, ok bool, err error)
	Save(ctx context.Context, description string) error
}

// Manager serves the current persona. Reads never touch the store.
type Manager struct {
	store  Store
	logger *slog.Logger

	mu          sync.RWMutex
	description string
}

// NewManager loads the saved persona, falling back to fallback (or
// DefaultDescription when empty).
func NewManager(ctx context.Context, store Store, fallback string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewMemoryStore()
	}
	desc := strings.TrimSpace(fallback)
	if desc == "" {
		desc = DefaultDescription
	}

	saved, ok, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load persona: %w", err)
	}
	if ok && strings.TrimSpace(saved) != "" {
		desc = saved
		logger.Debug("persona restored", "bytes", len(saved))
	}
	return &Manager{store: store, logger: logger, description: desc}, nil
}

func (m *Manager) Description() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.description
}

// Set trims and saves the description, then makes it current.
func (m *Manager) Set(ctx context.Context, description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return ErrEmptyDescription
	}
	if err := m.store.Save(ctx, description); err != nil {
		return fmt.Errorf("save persona: %w", err)
	}
	m.mu.Lock()
	m.description = description
	m.mu.Unlock()
	m.logger.Info("persona updated", "bytes", len(description))
	return nil
}

// FormattedContext is the system prompt used for persona-voiced calls.
func (m *Manager) FormattedContext() string {
	return m.Description() + taskSuffix
}

// MemoryStore keeps the description for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	desc  string
	saved bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc, s.saved, nil
}

func (s *MemoryStore) Save(_ context.Context, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desc, s.saved = description, true
	return nil
}

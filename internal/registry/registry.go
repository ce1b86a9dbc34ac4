// Package registry keeps the operator-maintained allow-list of monitored
// chats in a small JSON file. The pipeline only reads it; mutation
// happens through the CLI.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/types"
)

// Entry is one monitored chat. Priority runs 1 (highest) to 5 (lowest)
// and only affects reporting order, never pipeline behavior.
type Entry struct {
	ChatID         string         `json:"chat_id"`
	Name           string         `json:"name"`
	Kind           types.ChatKind `json:"kind"`
	Priority       int            `json:"priority"`
	Active         bool           `json:"active"`
	AddedAt        time.Time      `json:"added_at"`
	DisabledAt     *time.Time     `json:"disabled_at,omitempty"`
	DisabledReason string         `json:"disabled_reason,omitempty"`
}

// Registry is the JSON-file backed chat allow-list. Safe for concurrent
// use; every mutation rewrites the file atomically.
type Registry struct {
	mu      sync.RWMutex
	path    string
	entries map[string]*Entry
	logger  zerolog.Logger
}

type fileFormat struct {
	Chats []*Entry `json:"chats"`
}

// Load reads the registry file, creating an empty registry when the
// file does not exist yet.
func Load(path string, logger zerolog.Logger) (*Registry, error) {
	r := &Registry{
		path:    path,
		entries: make(map[string]*Entry),
		logger:  logger.With().Str("component", "chat_registry").Logger(),
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}
	for _, e := range f.Chats {
		if e.ChatID == "" {
			continue
		}
		r.entries[e.ChatID] = e
	}
	r.logger.Info().Int("chats", len(r.entries)).Str("path", path).Msg("Chat registry loaded")
	return r, nil
}

// IsMonitored reports whether the chat is registered and active.
func (r *Registry) IsMonitored(chatID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[chatID]
	return ok && e.Active
}

// Get returns a copy of the entry for chatID.
func (r *Registry) Get(chatID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[chatID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// ListActive returns the active entries, highest priority first, name
// as tiebreaker.
func (r *Registry) ListActive() []Entry {
	return r.list(true)
}

// ListAll returns every entry including disabled ones.
func (r *Registry) ListAll() []Entry {
	return r.list(false)
}

func (r *Registry) list(activeOnly bool) []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, *e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Add registers a chat, overwriting an existing entry with the same id.
// Priority outside 1..5 is clamped.
func (r *Registry) Add(chatID, name string, kind types.ChatKind, priority int) error {
	if chatID == "" {
		return fmt.Errorf("registry: chat id is required")
	}
	if priority < 1 {
		priority = 1
	}
	if priority > 5 {
		priority = 5
	}

	r.mu.Lock()
	r.entries[chatID] = &Entry{
		ChatID:   chatID,
		Name:     name,
		Kind:     types.NormalizeChatKind(string(kind)),
		Priority: priority,
		Active:   true,
		AddedAt:  time.Now().UTC(),
	}
	err := r.saveLocked()
	r.mu.Unlock()
	return err
}

// Remove deletes the entry entirely.
func (r *Registry) Remove(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[chatID]; !ok {
		return fmt.Errorf("registry: chat %s not found", chatID)
	}
	delete(r.entries, chatID)
	return r.saveLocked()
}

// Enable reactivates a disabled chat.
func (r *Registry) Enable(chatID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[chatID]
	if !ok {
		return fmt.Errorf("registry: chat %s not found", chatID)
	}
	e.Active = true
	e.DisabledAt = nil
	e.DisabledReason = ""
	return r.saveLocked()
}

// Disable deactivates a chat, recording when and why.
func (r *Registry) Disable(chatID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[chatID]
	if !ok {
		return fmt.Errorf("registry: chat %s not found", chatID)
	}
	now := time.Now().UTC()
	e.Active = false
	e.DisabledAt = &now
	e.DisabledReason = reason
	return r.saveLocked()
}

// SetPriority updates a chat's priority, clamped to 1..5.
func (r *Registry) SetPriority(chatID string, priority int) error {
	if priority < 1 {
		priority = 1
	}
	if priority > 5 {
		priority = 5
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[chatID]
	if !ok {
		return fmt.Errorf("registry: chat %s not found", chatID)
	}
	e.Priority = priority
	return r.saveLocked()
}

// Clear removes every entry.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]*Entry)
	return r.saveLocked()
}

// saveLocked writes the file atomically via a temp file rename. Caller
// holds the write lock.
func (r *Registry) saveLocked() error {
	f := fileFormat{Chats: make([]*Entry, 0, len(r.entries))}
	for _, e := range r.entries {
		f.Chats = append(f.Chats, e)
	}
	sort.Slice(f.Chats, func(i, j int) bool { return f.Chats[i].ChatID < f.Chats[j].ChatID })

	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".registry-*.json")
	if err != nil {
		return fmt.Errorf("create registry temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close registry temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace registry file: %w", err)
	}
	return nil
}

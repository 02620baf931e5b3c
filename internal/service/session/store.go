package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/datastream-chat/backend/internal/model/chat"
	"github.com/zhouzirui/datastream-chat/backend/internal/storage"
)

var ErrSessionNotFound = errors.New("session not found")

// Store owns the session list and the active-session pointer, and is the only
// writer of their persisted form.
type Store struct {
	mu       sync.RWMutex
	kv       storage.KV
	log      zerolog.Logger
	newID    func() string
	sessions []chat.Session
	activeID string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for recovery and persistence diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "session-store").Logger() }
}

// WithIDGenerator replaces uuid-based session ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

func NewStore(kv storage.KV, opts ...Option) *Store {
	s := &Store{
		kv:    kv,
		log:   zerolog.Nop(),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize rebuilds in-memory state from storage. Missing or corrupt data
// degrades to a fresh default session; it is logged, never returned.
func (s *Store) Initialize(ctx context.Context) {
	sessions := s.loadSessions(ctx)
	activeID := s.loadActiveID(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = sessions
	s.activeID = activeID
	if len(s.sessions) == 0 {
		s.sessions = []chat.Session{chat.NewSession(s.newID())}
		s.activeID = s.sessions[0].ID
		s.log.Info().Str("session_id", s.activeID).Msg("no stored sessions, created default")
	} else if s.indexOf(s.activeID) < 0 {
		s.log.Warn().
			Str("stored_active_id", s.activeID).
			Str("fallback_id", s.sessions[0].ID).
			Msg("stale active session id, falling back to first session")
		s.activeID = s.sessions[0].ID
	}

	s.persistLocked(ctx)
}

func (s *Store) loadSessions(ctx context.Context) []chat.Session {
	raw, err := s.kv.Get(ctx, storage.SessionsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read stored sessions, starting fresh")
		return nil
	}

	var sessions []chat.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		s.log.Warn().Err(err).Int("bytes", len(raw)).Msg("corrupt stored sessions, starting fresh")
		return nil
	}

	valid := sessions[:0]
	for _, session := range sessions {
		if session.ID == "" {
			s.log.Warn().Msg("dropping stored session without id")
			continue
		}
		if session.History == nil {
			session.History = []chat.Turn{}
		}
		valid = append(valid, session)
	}
	return valid
}

func (s *Store) loadActiveID(ctx context.Context) string {
	id, err := s.kv.Get(ctx, storage.ActiveSessionKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Msg("failed to read active session id")
		}
		return ""
	}
	return id
}

// CreateSession inserts an empty session at the front and makes it active.
func (s *Store) CreateSession(ctx context.Context) (string, error) {
	session := chat.NewSession(s.newID())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = append([]chat.Session{session}, s.sessions...)
	s.activeID = session.ID
	s.persistLocked(ctx)
	return session.ID, nil
}

// SwitchActive marks id active. Switching to the already active id does nothing.
func (s *Store) SwitchActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.activeID {
		return nil
	}
	if s.indexOf(id) < 0 {
		return fmt.Errorf("switch to %q: %w", id, ErrSessionNotFound)
	}
	s.activeID = id
	s.persistLocked(ctx)
	return nil
}

// AppendTurn adds one text turn to a session's history.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, role chat.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(sessionID)
	if idx < 0 {
		return fmt.Errorf("append to %q: %w", sessionID, ErrSessionNotFound)
	}
	s.sessions[idx].History = append(s.sessions[idx].History, chat.NewTurn(role, text))
	s.persistLocked(ctx)
	return nil
}

// ReplaceHistory overwrites a session's history with the canonical transcript.
func (s *Store) ReplaceHistory(ctx context.Context, sessionID string, history []chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(sessionID)
	if idx < 0 {
		return fmt.Errorf("replace history of %q: %w", sessionID, ErrSessionNotFound)
	}
	s.sessions[idx].History = chat.CloneTurns(history)
	s.persistLocked(ctx)
	return nil
}

// RenameIfDefault sets the title only while the session still has the placeholder.
func (s *Store) RenameIfDefault(ctx context.Context, sessionID, title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(sessionID)
	if idx < 0 {
		return false, fmt.Errorf("rename %q: %w", sessionID, ErrSessionNotFound)
	}
	if s.sessions[idx].Title != chat.DefaultTitle {
		return false, nil
	}
	s.sessions[idx].Title = title
	s.persistLocked(ctx)
	return true, nil
}

// Persist writes the session list and active id, overwriting prior state.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeLocked(ctx)
}

// persistLocked is called after every mutation; failures leave the in-memory state intact.
func (s *Store) persistLocked(ctx context.Context) {
	if err := s.writeLocked(ctx); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist sessions")
	}
}

func (s *Store) writeLocked(ctx context.Context) error {
	payload, err := json.Marshal(s.sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.kv.Set(ctx, storage.SessionsKey, string(payload)); err != nil {
		return fmt.Errorf("write sessions: %w", err)
	}
	if err := s.kv.Set(ctx, storage.ActiveSessionKey, s.activeID); err != nil {
		return fmt.Errorf("write active session: %w", err)
	}
	return nil
}

// Sessions returns copies of all sessions, newest first.
func (s *Store) Sessions() []chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Session, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = session.Clone()
	}
	return out
}

// Summaries lists sidebar entries in store order.
func (s *Store) Summaries() []chat.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Summary, len(s.sessions))
	for i, session := range s.sessions {
		out[i] = session.Summary()
	}
	return out
}

// Session retrieves a copy of a session by identifier.
func (s *Store) Session(id string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return chat.Session{}, ErrSessionNotFound
	}
	return s.sessions[idx].Clone(), nil
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active session.
func (s *Store) Active() (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(s.activeID)
	if idx < 0 {
		return chat.Session{}, ErrSessionNotFound
	}
	return s.sessions[idx].Clone(), nil
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

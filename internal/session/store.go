package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pagechat/internal/store"
)

// Store keeps one active session in memory and persists sessions keyed by
// (domain, session id). A session with no messages is never written to
// storage, so abandoned sessions leave no key litter.
type Store struct {
	db  *store.DB
	log *zap.Logger

	mu      sync.Mutex
	current *Session
}

func NewStore(db *store.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// newID mints a session id: time-based prefix for natural ordering plus a
// random suffix to avoid collision.
func newID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func newSession(domain string) *Session {
	return &Session{
		ID:          newID(),
		Domain:      domain,
		Messages:    []Message{},
		LastUpdated: time.Now(),
	}
}

// Current returns a copy of the active session.
func (s *Store) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Session{}
	}
	out := *s.current
	out.Messages = append([]Message(nil), s.current.Messages...)
	return out
}

// ResumeMostRecent loads the domain's most recently updated session as the
// active one, or mints a fresh empty session when the domain has none.
func (s *Store) ResumeMostRecent(ctx context.Context, domain string) (Session, error) {
	recs, err := s.db.ListSessions(ctx, domain)
	if err != nil {
		return Session{}, fmt.Errorf("resume session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(recs) == 0 {
		s.current = newSession(domain)
		return *s.current, nil
	}

	sess, err := decode(recs[0])
	if err != nil {
		// Corrupted record: start fresh rather than failing startup.
		s.log.Warn("discarding unreadable session record",
			zap.String("domain", domain),
			zap.String("session", recs[0].SessionID),
			zap.Error(err))
		s.current = newSession(domain)
		return *s.current, nil
	}
	s.current = &sess
	return s.currentLocked(), nil
}

// CreateNew persists the active session first (when non-empty), then makes a
// fresh empty session active.
func (s *Store) CreateNew(ctx context.Context, domain string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx); err != nil {
		return Session{}, err
	}
	s.current = newSession(domain)
	return s.currentLocked(), nil
}

// AppendPair records one completed turn: the user message and the assistant
// response (or error turn), bumps recency, and persists the whole session.
func (s *Store) AppendPair(ctx context.Context, user, assistant Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return fmt.Errorf("no active session")
	}
	if user.Timestamp.IsZero() {
		user.Timestamp = time.Now()
	}
	if assistant.Timestamp.IsZero() {
		assistant.Timestamp = time.Now()
	}
	s.current.Messages = append(s.current.Messages, user, assistant)
	if s.current.Title == "" {
		s.current.Title = deriveTitle(user.Content)
	}
	s.current.LastUpdated = time.Now()
	return s.persistLocked(ctx)
}

// TrimLastAssistant removes the trailing assistant message in memory and
// returns the user message it answered. Used by regeneration; the caller
// must follow up with AppendAssistant to restore the pair invariant before
// anything persists.
func (s *Store) TrimLastAssistant() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || len(s.current.Messages) < 2 {
		return Message{}, false
	}
	last := s.current.Messages[len(s.current.Messages)-1]
	if last.Role != RoleAssistant {
		return Message{}, false
	}
	s.current.Messages = s.current.Messages[:len(s.current.Messages)-1]
	return s.current.Messages[len(s.current.Messages)-1], true
}

// AppendAssistant completes a regenerated turn and persists.
func (s *Store) AppendAssistant(ctx context.Context, assistant Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return fmt.Errorf("no active session")
	}
	if assistant.Timestamp.IsZero() {
		assistant.Timestamp = time.Now()
	}
	s.current.Messages = append(s.current.Messages, assistant)
	s.current.LastUpdated = time.Now()
	return s.persistLocked(ctx)
}

// SwitchTo persists the active session, then loads the target as active.
func (s *Store) SwitchTo(ctx context.Context, domain, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistLocked(ctx); err != nil {
		return Session{}, err
	}
	rec, err := s.db.GetSession(ctx, domain, sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("switch session: %w", err)
	}
	sess, err := decode(rec)
	if err != nil {
		return Session{}, fmt.Errorf("switch session: %w", err)
	}
	s.current = &sess
	return s.currentLocked(), nil
}

// Delete removes one persisted session. Deleting the active session resets
// the in-memory state to a fresh empty session for the same domain.
func (s *Store) Delete(ctx context.Context, domain, sessionID string) error {
	if err := s.db.DeleteSession(ctx, domain, sessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Domain == domain && s.current.ID == sessionID {
		s.current = newSession(domain)
	}
	return nil
}

// DeleteAll removes every persisted session for a domain, or everything when
// the domain is empty. The active session is reset when covered.
func (s *Store) DeleteAll(ctx context.Context, domain string) error {
	if err := s.db.DeleteSessions(ctx, domain); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && (domain == "" || s.current.Domain == domain) {
		s.current = newSession(s.current.Domain)
	}
	return nil
}

// List returns summaries for a domain (or all domains when empty), most
// recent first.
func (s *Store) List(ctx context.Context, domain string) ([]Summary, error) {
	recs, err := s.db.ListSessions(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		var msgs []Message
		if err := json.Unmarshal(rec.Messages, &msgs); err != nil {
			s.log.Warn("skipping unreadable session record",
				zap.String("session", rec.SessionID), zap.Error(err))
			continue
		}
		out = append(out, Summary{
			Domain:       rec.Domain,
			ID:           rec.SessionID,
			Title:        rec.Title,
			MessageCount: len(msgs),
			LastUpdated:  rec.LastUpdated,
		})
	}
	return out, nil
}

// Persist flushes the active session, used on shutdown.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// persistLocked writes the whole active session. Empty sessions are skipped.
func (s *Store) persistLocked(ctx context.Context) error {
	if s.current == nil || len(s.current.Messages) == 0 {
		return nil
	}
	data, err := json.Marshal(s.current.Messages)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.db.PutSession(ctx, store.SessionRecord{
		Domain:      s.current.Domain,
		SessionID:   s.current.ID,
		Title:       s.current.Title,
		Messages:    data,
		LastUpdated: s.current.LastUpdated,
	})
}

// currentLocked returns a copy; callers must hold the lock.
func (s *Store) currentLocked() Session {
	out := *s.current
	out.Messages = append([]Message(nil), s.current.Messages...)
	return out
}

func decode(rec store.SessionRecord) (Session, error) {
	var msgs []Message
	if err := json.Unmarshal(rec.Messages, &msgs); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", rec.SessionID, err)
	}
	return Session{
		ID:          rec.SessionID,
		Domain:      rec.Domain,
		Title:       rec.Title,
		Messages:    msgs,
		LastUpdated: rec.LastUpdated,
	}, nil
}

const titleLimit = 48

// deriveTitle names a session after its first user message.
func deriveTitle(content string) string {
	runes := []rune(content)
	if len(runes) <= titleLimit {
		return content
	}
	return string(runes[:titleLimit]) + "…"
}

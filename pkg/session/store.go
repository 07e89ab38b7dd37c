package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prasetya/lintas/internal/observability"
	"github.com/prasetya/lintas/internal/tracing"
	"github.com/prasetya/lintas/pkg/chat"
)

// State is the full conversation state for one live session. The Store owns
// every State exclusively; callers only ever see copies.
type State struct {
	SessionID     string
	UserID        string
	TeamID        string
	Role          string
	WorkspaceRoot string
	CreatedAt     time.Time
	LastSeenAt    time.Time
	Messages      []chat.Message

	// ResumeHandles maps backend id to that backend's opaque continuation
	// token (e.g. a CLI thread id, a remote agent session id).
	ResumeHandles map[string]string
}

func (s *State) clone() *State {
	cp := *s
	cp.Messages = append([]chat.Message(nil), s.Messages...)
	cp.ResumeHandles = make(map[string]string, len(s.ResumeHandles))
	for k, v := range s.ResumeHandles {
		cp.ResumeHandles[k] = v
	}
	return &cp
}

// Params carries the identity and limits for a get-or-create request.
type Params struct {
	SessionID     string
	UserID        string
	TeamID        string
	Role          string
	SystemPrompt  string
	WorkspaceRoot string
	TTL           time.Duration // <= 0 disables idle expiry
	MaxSessions   int           // <= 0 disables the capacity cap
}

// Store is the in-memory session registry. A single mutex guards the whole
// map; individual operations are short and never block on I/O.
type Store struct {
	sessions map[string]*State
	mu       sync.Mutex
}

// NewStore creates an empty session store.
func NewStore() *Store {
	observability.EnsureRegistered()
	return &Store{
		sessions: make(map[string]*State),
	}
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if strings.Contains(sessionID, "\x00") {
		return fmt.Errorf("session id cannot contain null bytes")
	}
	return nil
}

// GetOrCreate returns the live session for p.SessionID, creating it when
// absent. An existing session owned by a different (user, team) fails with
// ErrOwnership. A role or workspace change resets the session: history
// collapses to a single system message and resume handles are cleared.
func (s *Store) GetOrCreate(ctx context.Context, p Params) (*State, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionID(ctx, p.SessionID)
	ctx, span := tracing.StartSpan(
		ctx,
		"lintas.session",
		"session.get_or_create",
		attribute.String("session_id", p.SessionID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	if err := validateSessionID(p.SessionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.pruneLocked(now, p.TTL, p.MaxSessions, p.SessionID)

	if st, ok := s.sessions[p.SessionID]; ok {
		if st.UserID != p.UserID || st.TeamID != p.TeamID {
			observability.RecordOwnershipReject()
			err := fmt.Errorf("%w: session %s", ErrOwnership, p.SessionID)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if st.Role != p.Role || st.WorkspaceRoot != p.WorkspaceRoot {
			// Switching role or workspace invalidates conversational and
			// backend continuity.
			st.Role = p.Role
			st.WorkspaceRoot = p.WorkspaceRoot
			st.Messages = []chat.Message{chat.System(p.SystemPrompt)}
			st.ResumeHandles = make(map[string]string)
			logger.Info().Str("session_id", p.SessionID).Msg("Session reset for role/workspace change")
		}

		st.LastSeenAt = now
		return st.clone(), nil
	}

	st := &State{
		SessionID:     p.SessionID,
		UserID:        p.UserID,
		TeamID:        p.TeamID,
		Role:          p.Role,
		WorkspaceRoot: p.WorkspaceRoot,
		CreatedAt:     now,
		LastSeenAt:    now,
		Messages:      []chat.Message{chat.System(p.SystemPrompt)},
		ResumeHandles: make(map[string]string),
	}
	s.sessions[p.SessionID] = st
	observability.SetActiveSessions(len(s.sessions))

	logger.Info().Str("session_id", p.SessionID).Msg("Session created")
	return st.clone(), nil
}

// UpdateMessages replaces the session's history with a trimmed view of
// messages. A session that no longer exists (evicted concurrently) is a
// silent no-op, not an error: the update is simply lost.
func (s *Store) UpdateMessages(ctx context.Context, sessionID, userID, teamID string, messages []chat.Message, maxMessages, maxChars int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"lintas.session",
		"session.update_messages",
		attribute.String("session_id", sessionID),
		attribute.Int("messages", len(messages)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		log.Debug().Str("session_id", sessionID).Msg("Update for missing session dropped")
		return nil
	}
	if st.UserID != userID || st.TeamID != teamID {
		observability.RecordOwnershipReject()
		err := fmt.Errorf("%w: session %s", ErrOwnership, sessionID)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	trimmed := Trim(messages, maxMessages, maxChars)
	if dropped := len(messages) - len(trimmed); dropped > 0 {
		observability.RecordTrimmedMessages(dropped)
	}
	st.Messages = append([]chat.Message(nil), trimmed...)
	st.LastSeenAt = time.Now()
	return nil
}

// AssertAccess validates liveness and ownership without touching history.
// It refreshes the session's last-seen time on success.
func (s *Store) AssertAccess(ctx context.Context, sessionID, userID, teamID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	if ttl > 0 && time.Since(st.LastSeenAt) > ttl {
		delete(s.sessions, sessionID)
		observability.SetActiveSessions(len(s.sessions))
		observability.RecordSessionEviction("ttl", 1)
		return fmt.Errorf("%w: %s", ErrExpired, sessionID)
	}

	if st.UserID != userID || st.TeamID != teamID {
		observability.RecordOwnershipReject()
		return fmt.Errorf("%w: session %s", ErrOwnership, sessionID)
	}

	st.LastSeenAt = time.Now()
	return nil
}

// ResumeHandle returns the stored continuation token for a backend, or ""
// when none exists.
func (s *Store) ResumeHandle(sessionID, backend string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return ""
	}
	return st.ResumeHandles[backend]
}

// SetResumeHandle stores (or clears, when handle is empty) a backend's
// continuation token. Missing sessions are a no-op, matching UpdateMessages.
func (s *Store) SetResumeHandle(sessionID, backend, handle string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if handle == "" {
		delete(st.ResumeHandles, backend)
		return
	}
	st.ResumeHandles[backend] = handle
}

// Get returns a copy of the session state, or ErrNotFound.
func (s *Store) Get(sessionID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return st.clone(), nil
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep applies TTL and capacity eviction outside of any request, for use
// by the background janitor.
func (s *Store) Sweep(ttl time.Duration, maxSessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked(time.Now(), ttl, maxSessions, "")
}

// pruneLocked applies the two eviction policies. keep is the session about
// to be touched by the caller; the capacity pass never evicts it, and when
// keep is not yet in the map it reserves a slot for the pending insert.
func (s *Store) pruneLocked(now time.Time, ttl time.Duration, maxSessions int, keep string) {
	if ttl > 0 {
		expired := 0
		for id, st := range s.sessions {
			if now.Sub(st.LastSeenAt) > ttl {
				delete(s.sessions, id)
				expired++
			}
		}
		if expired > 0 {
			observability.RecordSessionEviction("ttl", expired)
			log.Debug().Int("count", expired).Msg("Expired sessions pruned")
		}
	}

	limit := maxSessions
	if keep != "" {
		if _, ok := s.sessions[keep]; !ok {
			limit--
		}
	}
	if maxSessions > 0 && len(s.sessions) > limit {
		type entry struct {
			id   string
			seen time.Time
		}
		entries := make([]entry, 0, len(s.sessions))
		for id, st := range s.sessions {
			entries = append(entries, entry{id: id, seen: st.LastSeenAt})
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].seen.Before(entries[j].seen)
		})

		evicted := 0
		for _, e := range entries {
			if len(s.sessions) <= limit {
				break
			}
			if e.id == keep {
				continue
			}
			delete(s.sessions, e.id)
			evicted++
		}
		if evicted > 0 {
			observability.RecordSessionEviction("capacity", evicted)
			log.Debug().Int("count", evicted).Msg("Sessions evicted over capacity")
		}
	}

	observability.SetActiveSessions(len(s.sessions))
}

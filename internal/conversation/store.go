package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// State is the per-session conversation snapshot the pipeline reads before
// classification and writes after answering.
type State struct {
	History              []types.Message   `json:"history"`
	PendingClarification bool              `json:"pending_clarification"`
	OriginalQuery        string            `json:"original_query,omitempty"`
	Context              map[string]string `json:"context,omitempty"`
}

// Store keeps conversation state in Redis, one hash-free JSON value per
// session, with a sliding TTL. History is bounded to the most recent turns.
type Store struct {
	client     *redis.Client
	ttl        time.Duration
	maxHistory int
	prefix     string
	logger     *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock

	stopCh   chan struct{}
	stopOnce sync.Once
}

// sessionLock tracks holders and last release so idle entries can be swept.
type sessionLock struct {
	mu       sync.Mutex
	refs     int
	lastUsed time.Time
}

// NewStore creates a store. maxHistory <= 0 falls back to 10 messages; a zero
// ttl keeps sessions forever and disables the lock sweep.
func NewStore(client *redis.Client, ttl time.Duration, maxHistory int, logger *logrus.Logger) *Store {
	if maxHistory <= 0 {
		maxHistory = 10
	}
	s := &Store{
		client:     client,
		ttl:        ttl,
		maxHistory: maxHistory,
		prefix:     "flowpilot:session:",
		logger:     logger,
		locks:      make(map[string]*sessionLock),
		stopCh:     make(chan struct{}),
	}
	if ttl > 0 {
		go s.sweepLoop()
	}
	return s
}

// Lock serializes pipeline runs for one session so two concurrent messages
// from the same user cannot interleave their history writes. Returns the
// unlock function.
//
// The locks are in-process only; running multiple replicas needs sticky
// sessions at the load balancer.
func (s *Store) Lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		l.lastUsed = time.Now()
		s.mu.Unlock()
	}
}

// Stop terminates the lock sweep loop. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepIdleLocks(time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// sweepIdleLocks drops lock entries whose session TTL has lapsed. Entries
// with holders or waiters are kept regardless of age.
func (s *Store) sweepIdleLocks(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.locks {
		if l.refs == 0 && now.Sub(l.lastUsed) >= s.ttl {
			delete(s.locks, id)
		}
	}
}

// Get loads the session state, returning an empty state for new sessions and
// on Redis failure. Conversation memory is an enhancement, never a blocker.
func (s *Store) Get(ctx context.Context, sessionID string) *State {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == redis.Nil {
		return &State{}
	}
	if err != nil {
		s.logger.WithError(err).Warn("Session read failed, starting fresh")
		return &State{}
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		s.logger.WithError(err).Warn("Session state corrupt, starting fresh")
		return &State{}
	}
	return &state
}

// Put persists the session state and refreshes its TTL. History beyond the
// bound is trimmed oldest-first before writing.
func (s *Store) Put(ctx context.Context, sessionID string, state *State) {
	if len(state.History) > s.maxHistory {
		state.History = state.History[len(state.History)-s.maxHistory:]
	}

	raw, err := json.Marshal(state)
	if err != nil {
		s.logger.WithError(err).Error("Session state not serializable")
		return
	}

	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		s.logger.WithError(err).Warn("Session write failed")
	}
}

// AppendTurn records one user/assistant exchange and persists the state.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, state *State, userText, assistantText string) {
	now := time.Now()
	state.History = append(state.History,
		types.Message{Role: "user", Content: userText, At: now},
		types.Message{Role: "assistant", Content: assistantText, At: now},
	)
	s.Put(ctx, sessionID, state)
}

// Clear drops a session entirely.
func (s *Store) Clear(ctx context.Context, sessionID string) {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		s.logger.WithError(err).Warn("Session delete failed")
	}

	s.mu.Lock()
	if l, ok := s.locks[sessionID]; ok && l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

func (s *Store) key(sessionID string) string {
	return fmt.Sprintf("%s%s", s.prefix, sessionID)
}

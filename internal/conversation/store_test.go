package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

func newTestStore(t *testing.T, ttl time.Duration, maxHistory int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s := NewStore(client, ttl, maxHistory, logger)
	t.Cleanup(s.Stop)
	return s, mr
}

func TestStore_NewSessionIsEmpty(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 10)

	state := s.Get(context.Background(), "fresh")

	require.NotNil(t, state)
	assert.Empty(t, state.History)
	assert.False(t, state.PendingClarification)
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 10)
	ctx := context.Background()

	state := &State{
		PendingClarification: true,
		OriginalQuery:        "quali errori?",
		Context:              map[string]string{"workflow_id": "wf-7"},
		History: []types.Message{
			{Role: "user", Content: "quali errori?", At: time.Now()},
		},
	}
	s.Put(ctx, "sess-1", state)

	loaded := s.Get(ctx, "sess-1")

	assert.True(t, loaded.PendingClarification)
	assert.Equal(t, "quali errori?", loaded.OriginalQuery)
	assert.Equal(t, "wf-7", loaded.Context["workflow_id"])
	require.Len(t, loaded.History, 1)
	assert.Equal(t, "quali errori?", loaded.History[0].Content)
}

func TestStore_HistoryIsBounded(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 4)
	ctx := context.Background()

	state := &State{}
	for i := 0; i < 5; i++ {
		s.AppendTurn(ctx, "sess-1", state, fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i))
	}

	loaded := s.Get(ctx, "sess-1")

	require.Len(t, loaded.History, 4)
	assert.Equal(t, "q3", loaded.History[0].Content, "oldest turns are dropped first")
	assert.Equal(t, "a4", loaded.History[3].Content)
}

func TestStore_SessionTTL(t *testing.T) {
	s, mr := newTestStore(t, time.Minute, 10)
	ctx := context.Background()

	s.Put(ctx, "sess-1", &State{OriginalQuery: "ciao"})
	require.Equal(t, "ciao", s.Get(ctx, "sess-1").OriginalQuery)

	mr.FastForward(2 * time.Minute)

	assert.Empty(t, s.Get(ctx, "sess-1").OriginalQuery, "expired session starts fresh")
}

func TestStore_Clear(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 10)
	ctx := context.Background()

	s.Put(ctx, "sess-1", &State{OriginalQuery: "ciao"})
	s.Clear(ctx, "sess-1")

	assert.Empty(t, s.Get(ctx, "sess-1").OriginalQuery)
}

func TestStore_RedisDownStartsFresh(t *testing.T) {
	s, mr := newTestStore(t, time.Hour, 10)
	ctx := context.Background()

	s.Put(ctx, "sess-1", &State{OriginalQuery: "ciao"})
	mr.Close()

	state := s.Get(ctx, "sess-1")

	require.NotNil(t, state)
	assert.Empty(t, state.OriginalQuery)
}

func TestStore_LockSerializesSameSession(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 10)

	var inCritical int
	var maxInCritical int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.Lock("sess-1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "only one goroutine per session at a time")
}

func TestStore_IdleLocksAreSwept(t *testing.T) {
	s, _ := newTestStore(t, time.Minute, 10)

	unlock := s.Lock("sess-idle")
	unlock()
	held := s.Lock("sess-held")
	defer held()

	s.sweepIdleLocks(time.Now().Add(2 * time.Minute))

	s.mu.Lock()
	_, idleKept := s.locks["sess-idle"]
	_, heldKept := s.locks["sess-held"]
	s.mu.Unlock()

	assert.False(t, idleKept, "idle lock past the TTL must be dropped")
	assert.True(t, heldKept, "a held lock survives the sweep")
}

func TestStore_SweptLockStillSerializes(t *testing.T) {
	s, _ := newTestStore(t, time.Minute, 10)

	unlock := s.Lock("sess-1")
	unlock()
	s.sweepIdleLocks(time.Now().Add(2 * time.Minute))

	// Locking after a sweep recreates the entry and keeps exclusivity.
	again := s.Lock("sess-1")
	blocked := make(chan struct{})
	go func() {
		u := s.Lock("sess-1")
		u()
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("second locker ran while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}
	again()
	<-blocked
}

func TestStore_LocksAreIndependentAcrossSessions(t *testing.T) {
	s, _ := newTestStore(t, time.Hour, 10)

	unlockA := s.Lock("sess-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := s.Lock("sess-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different session must not block")
	}
}

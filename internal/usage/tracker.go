package usage

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// TierStats accumulates usage for one tier since process start.
type TierStats struct {
	Calls            int64   `json:"calls"`
	Failures         int64   `json:"failures"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Tracker accumulates per-tier call, token and cost counters and flushes a
// periodic summary line, so a cost regression shows up in the logs long
// before the monthly invoice does.
type Tracker struct {
	mu    sync.Mutex
	stats map[types.Tier]*TierStats

	logger   *logrus.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTracker creates a tracker. A zero interval disables the periodic flush;
// counters still accumulate and Snapshot still works.
func NewTracker(interval time.Duration, logger *logrus.Logger) *Tracker {
	t := &Tracker{
		stats:    make(map[types.Tier]*TierStats),
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
	if interval > 0 {
		go t.flushLoop()
	}
	return t
}

// Record accumulates one provider call.
func (t *Tracker) Record(tier types.Tier, u types.Usage, costUSD float64, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats[tier]
	if !ok {
		s = &TierStats{}
		t.stats[tier] = s
	}

	s.Calls++
	if failed {
		s.Failures++
		return
	}
	s.PromptTokens += int64(u.PromptTokens)
	s.CompletionTokens += int64(u.CompletionTokens)
	s.CostUSD += costUSD
}

// Snapshot returns a copy of all per-tier stats.
func (t *Tracker) Snapshot() map[types.Tier]TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.Tier]TierStats, len(t.stats))
	for tier, s := range t.stats {
		out[tier] = *s
	}
	return out
}

// Stop terminates the flush loop. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *Tracker) flushLoop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.flush()
		case <-t.stopCh:
			t.flush()
			return
		}
	}
}

func (t *Tracker) flush() {
	for tier, s := range t.Snapshot() {
		if s.Calls == 0 {
			continue
		}
		t.logger.WithFields(logrus.Fields{
			"tier":              tier,
			"calls":             s.Calls,
			"failures":          s.Failures,
			"prompt_tokens":     s.PromptTokens,
			"completion_tokens": s.CompletionTokens,
			"cost_usd":          s.CostUSD,
		}).Info("Usage summary")
	}
}

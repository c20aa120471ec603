package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowpilot-ai/flowpilot/internal/cache"
	"github.com/flowpilot-ai/flowpilot/internal/classifier"
	"github.com/flowpilot-ai/flowpilot/internal/conversation"
	"github.com/flowpilot-ai/flowpilot/internal/executor"
	"github.com/flowpilot-ai/flowpilot/internal/fastpath"
	"github.com/flowpilot-ai/flowpilot/internal/mapping"
	"github.com/flowpilot-ai/flowpilot/internal/masking"
	"github.com/flowpilot-ai/flowpilot/internal/routing"
	"github.com/flowpilot-ai/flowpilot/internal/synthesis"
	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// TimeoutMessage is sent when the overall deadline expires before an answer
// is ready.
const TimeoutMessage = "This is taking longer than expected. Please try again " +
	"in a moment."

// UnavailableMessage is sent when no model tier can serve the request.
const UnavailableMessage = "The assistant is temporarily unavailable. Please " +
	"try again shortly."

// Pipeline wires every stage of one query's journey: session state, fast
// path, classification, operation mapping and execution, synthesis, masking,
// caching. Each stage degrades independently; only a total model outage or
// the overall deadline produces a non-ok status.
type Pipeline struct {
	fastpath   *fastpath.Filter
	classifier *classifier.Classifier
	executor   *executor.Executor
	synth      *synthesis.Synthesizer
	enforcer   *masking.Enforcer
	cache      *cache.Cache
	sessions   *conversation.Store
	logger     *logrus.Logger
	timeout    time.Duration
}

// Config collects the pipeline's collaborators.
type Config struct {
	FastPath   *fastpath.Filter
	Classifier *classifier.Classifier
	Executor   *executor.Executor
	Synth      *synthesis.Synthesizer
	Enforcer   *masking.Enforcer
	Cache      *cache.Cache
	Sessions   *conversation.Store
	Logger     *logrus.Logger
	Timeout    time.Duration
}

// New assembles a pipeline. A zero timeout falls back to 30 seconds.
func New(cfg Config) *Pipeline {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Pipeline{
		fastpath:   cfg.FastPath,
		classifier: cfg.Classifier,
		executor:   cfg.Executor,
		synth:      cfg.Synth,
		enforcer:   cfg.Enforcer,
		cache:      cfg.Cache,
		sessions:   cfg.Sessions,
		logger:     cfg.Logger,
		timeout:    cfg.Timeout,
	}
}

// Process answers one query end to end. It never returns an error: every
// failure mode maps to a response the user can act on.
func (p *Pipeline) Process(ctx context.Context, query types.Query) *types.Response {
	requestID := uuid.NewString()
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	log := p.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"session_id": query.SessionID,
	})

	unlock := p.sessions.Lock(query.SessionID)
	defer unlock()

	state := p.sessions.Get(ctx, query.SessionID)

	// A reply to a pending clarification is classified together with the
	// question that triggered it, so "the second one" has something to
	// resolve against.
	effectiveText := strings.TrimSpace(query.Text)
	if state.PendingClarification && state.OriginalQuery != "" {
		effectiveText = state.OriginalQuery + " " + effectiveText
		log.Debug("Merged clarification reply with original question")
	}

	resp := p.process(ctx, log, requestID, query, state, effectiveText)
	resp.Elapsed = float64(time.Since(start).Microseconds()) / 1000.0

	// The request context may already be expired here; history still gets
	// written so the next turn sees this one.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer saveCancel()
	p.sessions.AppendTurn(saveCtx, query.SessionID, state, query.Text, resp.Text)
	return resp
}

// ClearSession drops a conversation's memory.
func (p *Pipeline) ClearSession(ctx context.Context, sessionID string) {
	p.sessions.Clear(ctx, sessionID)
}

func (p *Pipeline) process(ctx context.Context, log *logrus.Entry, requestID string, query types.Query, state *conversation.State, text string) *types.Response {
	// Keyword short-circuit: danger and greetings never reach a model.
	if decision, hit := p.fastpath.Check(text); hit {
		state.PendingClarification = false
		state.OriginalQuery = ""
		return p.respond(requestID, decision.Category, "", decision.DirectResponse, types.StatusOK, false)
	}

	// A cached answer is served before any model is consulted; the stored
	// entry carries the category and tier of the run that produced it.
	if entry := p.cache.Get(ctx, text); entry != nil {
		log.WithField("category", entry.Category).Debug("Cache hit")
		state.PendingClarification = false
		state.OriginalQuery = ""
		resp := p.respond(requestID, entry.Category, entry.Tier, entry.Text, types.StatusOK, false)
		resp.FromCache = true
		return resp
	}

	decision, err := p.classifier.Classify(ctx, text, state.History)
	if err != nil {
		return p.failureResponse(log, requestID, err)
	}

	log.WithFields(logrus.Fields{
		"category":   decision.Category,
		"confidence": decision.Confidence,
		"tier":       decision.Tier,
	}).Info("Query classified")

	if decision.NeedsClarification {
		state.PendingClarification = true
		state.OriginalQuery = text
		return p.respond(requestID, decision.Category, decision.Tier, decision.DirectResponse, types.StatusOK, false)
	}

	state.PendingClarification = false
	state.OriginalQuery = ""

	if decision.Action == types.ActionRespond {
		masked := p.enforcer.Mask(decision.DirectResponse)
		return p.respond(requestID, decision.Category, decision.Tier, masked, types.StatusOK, masked != decision.DirectResponse)
	}

	// Session context fills parameter gaps: a follow-up like "and its
	// errors?" inherits the process discussed last turn.
	params := mergeParams(state.Context, decision.Parameters)
	invocations, normalized := mapping.Map(decision.Category, params)
	rememberParams(state, normalized)

	results := p.executor.Execute(ctx, invocations)

	if ctx.Err() != nil {
		return p.respond(requestID, decision.Category, decision.Tier, TimeoutMessage, types.StatusTimeout, false)
	}

	answer, err := p.synth.Synthesize(ctx, text, results, types.Tier(decision.Tier))
	if err != nil {
		return p.failureResponse(log, requestID, err)
	}

	masked := p.enforcer.Mask(answer)
	resp := p.respond(requestID, decision.Category, decision.Tier, masked, types.StatusOK, masked != answer)

	if decision.Category == types.CategoryActivation && anySuccess(results) {
		// A mutation may invalidate any cached status answer.
		p.cache.Invalidate(ctx)
	} else if anySuccess(results) {
		p.cache.Put(ctx, text, cache.Entry{Text: masked, Category: decision.Category, Tier: decision.Tier})
	}

	return resp
}

func (p *Pipeline) failureResponse(log *logrus.Entry, requestID string, err error) *types.Response {
	if errors.Is(err, context.DeadlineExceeded) {
		log.Warn("Pipeline deadline exceeded")
		return p.respond(requestID, "", "", TimeoutMessage, types.StatusTimeout, false)
	}
	if errors.Is(err, routing.ErrAllTiersUnavailable) {
		log.WithError(err).Error("All model tiers unavailable")
		return p.respond(requestID, "", "", UnavailableMessage, types.StatusFailed, false)
	}
	log.WithError(err).Error("Pipeline failed")
	return p.respond(requestID, "", "", UnavailableMessage, types.StatusFailed, false)
}

func (p *Pipeline) respond(requestID string, category types.Category, tier, text, status string, masked bool) *types.Response {
	return &types.Response{
		RequestID: requestID,
		Text:      text,
		Status:    status,
		Category:  category,
		Tier:      tier,
		Masked:    masked,
	}
}

// mergeParams overlays the classifier's fresh parameters on the remembered
// session context; fresh values win.
func mergeParams(sessionContext, fresh map[string]string) map[string]string {
	if len(sessionContext) == 0 {
		return fresh
	}
	merged := make(map[string]string, len(sessionContext)+len(fresh))
	for k, v := range sessionContext {
		merged[k] = v
	}
	for k, v := range fresh {
		merged[k] = v
	}
	return merged
}

// rememberParams keeps the normalized entity references for follow-ups.
func rememberParams(state *conversation.State, normalized map[string]string) {
	if len(normalized) == 0 {
		return
	}
	if state.Context == nil {
		state.Context = make(map[string]string, len(normalized))
	}
	for k, v := range normalized {
		state.Context[k] = v
	}
}

func anySuccess(results []types.OperationResult) bool {
	for _, r := range results {
		if r.Success {
			return true
		}
	}
	return false
}

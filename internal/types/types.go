package types

import (
	"time"
)

// Category is one of the closed set of intent labels the classifier can
// produce. Adding a category is a compile-time change: the mapper switches
// exhaustively over this set.
type Category string

const (
	CategoryGreeting         Category = "GREETING"
	CategoryDanger           Category = "DANGER"
	CategoryHelp             Category = "HELP"
	CategoryClarification    Category = "CLARIFICATION"
	CategoryWorkflowList     Category = "WORKFLOW_LIST"
	CategoryWorkflowDetail   Category = "WORKFLOW_DETAIL"
	CategoryWorkflowStatus   Category = "WORKFLOW_STATUS"
	CategoryStatusOverview   Category = "STATUS_OVERVIEW"
	CategoryErrorAnalysis    Category = "ERROR_ANALYSIS"
	CategoryStepDetail       Category = "STEP_DETAIL"
	CategoryExecutionHistory Category = "EXECUTION_HISTORY"
	CategoryPerformance      Category = "PERFORMANCE"
	CategoryActivation       Category = "ACTIVATION"
)

// AllCategories lists every valid category in a stable order, used to build
// the classification prompt and to validate model output.
var AllCategories = []Category{
	CategoryGreeting,
	CategoryDanger,
	CategoryHelp,
	CategoryClarification,
	CategoryWorkflowList,
	CategoryWorkflowDetail,
	CategoryWorkflowStatus,
	CategoryStatusOverview,
	CategoryErrorAnalysis,
	CategoryStepDetail,
	CategoryExecutionHistory,
	CategoryPerformance,
	CategoryActivation,
}

// ParseCategory returns the category matching s, or false when s is not part
// of the closed set.
func ParseCategory(s string) (Category, bool) {
	for _, c := range AllCategories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Cacheable reports whether results for this category may be stored in the
// result cache. Greetings, refusals and clarifications are already
// sub-millisecond via the fast path, and activation mutates state.
func (c Category) Cacheable() bool {
	switch c {
	case CategoryWorkflowList, CategoryWorkflowDetail, CategoryWorkflowStatus,
		CategoryStatusOverview, CategoryErrorAnalysis, CategoryStepDetail,
		CategoryExecutionHistory, CategoryPerformance:
		return true
	}
	return false
}

// Action tells the pipeline what to do with a classification decision.
type Action string

const (
	// ActionRespond means the decision carries a direct response and no
	// operations are invoked.
	ActionRespond Action = "respond"

	// ActionInvoke means the decision's category must be mapped to
	// retrieval operations before a response can be produced.
	ActionInvoke Action = "invoke_operations"
)

// Query is the immutable input of one pipeline invocation.
type Query struct {
	Text      string            `json:"text"`
	SessionID string            `json:"session_id"`
	Context   map[string]string `json:"context,omitempty"`
}

// Decision is the structured output of the fast path or the classifier.
//
// Invariant: Action == ActionRespond implies DirectResponse is non-empty;
// Action == ActionInvoke implies Category has a known operation mapping.
type Decision struct {
	Action             Action            `json:"action"`
	Category           Category          `json:"category"`
	Confidence         float64           `json:"confidence"`
	Reasoning          string            `json:"reasoning"`
	DirectResponse     string            `json:"direct_response,omitempty"`
	Parameters         map[string]string `json:"parameters,omitempty"`
	ClarifyOptions     []string          `json:"clarify_options,omitempty"`
	NeedsClarification bool              `json:"needs_clarification"`

	// Tier records which model tier produced the decision; empty when the
	// fast path answered without a provider call.
	Tier string `json:"tier,omitempty"`
}

// Invocation names one retrieval operation to run with its normalized
// parameters. Several invocations may result from a single decision.
type Invocation struct {
	Operation  string            `json:"operation"`
	Parameters map[string]string `json:"parameters"`
}

// OperationResult is the outcome of one operation invocation. Results are
// collected in invocation order so synthesis is reproducible.
type OperationResult struct {
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
	Payload   string `json:"payload,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Response is the outward result of one pipeline invocation.
type Response struct {
	RequestID string   `json:"request_id"`
	Text      string   `json:"text"`
	Status    string   `json:"status"`
	Category  Category `json:"category"`
	Tier      string   `json:"tier,omitempty"`
	FromCache bool     `json:"from_cache"`
	Masked    bool     `json:"masked"`
	Elapsed   float64  `json:"elapsed_ms"`
}

// Response statuses. Only a total provider failure or an empty mapped result
// for a category that required one reaches the caller as "failed".
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusTimeout = "timeout"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

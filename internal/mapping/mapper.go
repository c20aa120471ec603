package mapping

import (
	"strings"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

// Operation names understood by the executor's registry. These are external
// collaborators: the mapper only knows their names and parameter shapes.
const (
	OpListWorkflows     = "list_workflows"
	OpWorkflowDetail    = "get_workflow_detail"
	OpWorkflowStatus    = "get_workflow_status"
	OpAllErrorsSummary  = "get_all_errors_summary"
	OpWorkflowErrors    = "get_workflow_errors"
	OpNodeDetail        = "get_node_detail"
	OpExecutionHistory  = "get_execution_history"
	OpPerformanceStats  = "get_performance_stats"
	OpSetWorkflowActive = "set_workflow_active"
)

// Parameter keys the classifier may emit. Name-style keys are renamed to
// id-style keys before dispatch (rule 1).
const (
	ParamWorkflowID   = "workflow_id"
	ParamWorkflowName = "workflow_name"
	ParamNodeID       = "node_id"
	ParamNodeName     = "node_name"
	ParamActive       = "active"
	ParamLimit        = "limit"
)

// Map resolves a category plus the classifier's raw parameters into the
// operations to invoke and the normalized parameter set shared by all of
// them. Pure and deterministic: mapping the same input twice yields
// identical output. An unknown or terminal category yields an empty
// invocation list, which callers must treat as "nothing to execute".
//
// This table is where malformed or partial classifier output is repaired
// before anything is executed, so the fallback rules here are deliberately
// explicit rather than clever.
func Map(category types.Category, raw map[string]string) ([]types.Invocation, map[string]string) {
	params := normalize(raw)

	switch category {
	case types.CategoryWorkflowList:
		return invoke(nil, OpListWorkflows), nil

	case types.CategoryWorkflowDetail:
		if params[ParamWorkflowID] == "" {
			// No identifier: broaden to the full list instead of failing.
			return invoke(nil, OpListWorkflows), nil
		}
		return invoke(params, OpWorkflowDetail), params

	case types.CategoryWorkflowStatus:
		if params[ParamWorkflowID] == "" {
			return invoke(nil, OpListWorkflows), nil
		}
		return invoke(params, OpWorkflowStatus), params

	case types.CategoryStatusOverview:
		return invoke(nil, OpListWorkflows, OpAllErrorsSummary), nil

	case types.CategoryErrorAnalysis:
		// The classifier names the process the user talked about in
		// workflow_name; an id without a name means the model guessed, so
		// the broad summary is safer than querying a fabricated id.
		if strings.TrimSpace(raw[ParamWorkflowName]) == "" {
			return invoke(nil, OpAllErrorsSummary), nil
		}
		return invoke(params, OpWorkflowErrors), params

	case types.CategoryStepDetail:
		if params[ParamWorkflowID] == "" {
			return invoke(nil, OpListWorkflows), nil
		}
		if params[ParamNodeID] == "" {
			// Sub-entity missing: fall back to the full process detail.
			scoped := map[string]string{ParamWorkflowID: params[ParamWorkflowID]}
			return invoke(scoped, OpWorkflowDetail), scoped
		}
		return invoke(params, OpNodeDetail), params

	case types.CategoryExecutionHistory:
		return invoke(params, OpExecutionHistory), params

	case types.CategoryPerformance:
		return invoke(params, OpPerformanceStats), params

	case types.CategoryActivation:
		if params[ParamWorkflowID] == "" {
			return invoke(nil, OpListWorkflows), nil
		}
		if params[ParamActive] == "" {
			params[ParamActive] = "true"
		}
		return invoke(params, OpSetWorkflowActive), params

	case types.CategoryGreeting, types.CategoryDanger, types.CategoryHelp,
		types.CategoryClarification:
		// Terminal or direct-answer categories carry no operations.
		return nil, nil

	default:
		return nil, nil
	}
}

// normalize applies rule 1 (name→id rename) and drops blank values. The
// input map is never mutated.
func normalize(raw map[string]string) map[string]string {
	params := make(map[string]string, len(raw))
	for k, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		params[k] = v
	}

	renameIfMissing(params, ParamWorkflowName, ParamWorkflowID)
	renameIfMissing(params, ParamNodeName, ParamNodeID)

	return params
}

// renameIfMissing moves from→to when to is absent, then removes from.
func renameIfMissing(params map[string]string, from, to string) {
	v, ok := params[from]
	if !ok {
		return
	}
	if params[to] == "" {
		params[to] = v
	}
	delete(params, from)
}

// invoke builds one invocation per operation. Each invocation gets its own
// copy of params so an operation mutating its map cannot corrupt a sibling
// invocation or the normalized set returned to the caller.
func invoke(params map[string]string, ops ...string) []types.Invocation {
	out := make([]types.Invocation, 0, len(ops))
	for _, op := range ops {
		p := make(map[string]string, len(params))
		for k, v := range params {
			p[k] = v
		}
		out = append(out, types.Invocation{Operation: op, Parameters: p})
	}
	return out
}

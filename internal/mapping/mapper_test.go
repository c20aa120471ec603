package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowpilot-ai/flowpilot/internal/types"
)

func TestMap_NameToIDRename(t *testing.T) {
	invs, params := Map(types.CategoryWorkflowDetail, map[string]string{
		"workflow_name": "Orders",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpWorkflowDetail, invs[0].Operation)
	assert.Equal(t, "Orders", params[ParamWorkflowID])
	_, hasName := params[ParamWorkflowName]
	assert.False(t, hasName, "name key must be renamed, not duplicated")
}

func TestMap_RenameKeepsExistingID(t *testing.T) {
	_, params := Map(types.CategoryWorkflowDetail, map[string]string{
		"workflow_name": "Orders",
		"workflow_id":   "wf-42",
	})

	assert.Equal(t, "wf-42", params[ParamWorkflowID])
}

func TestMap_ErrorAnalysisFallsBackWithoutName(t *testing.T) {
	// An id alone does not count: the required key is the name the user
	// actually said.
	invs, params := Map(types.CategoryErrorAnalysis, map[string]string{
		"workflow_id": "X",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpAllErrorsSummary, invs[0].Operation)
	assert.Empty(t, invs[0].Parameters)
	assert.Empty(t, params)
}

func TestMap_ErrorAnalysisWithName(t *testing.T) {
	invs, params := Map(types.CategoryErrorAnalysis, map[string]string{
		"workflow_name": "Billing",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpWorkflowErrors, invs[0].Operation)
	assert.Equal(t, "Billing", params[ParamWorkflowID])
}

func TestMap_StepDetailFallsBackWithoutNode(t *testing.T) {
	invs, params := Map(types.CategoryStepDetail, map[string]string{
		"workflow_name": "Orders",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpWorkflowDetail, invs[0].Operation)
	assert.Equal(t, map[string]string{ParamWorkflowID: "Orders"}, params)
}

func TestMap_StepDetailWithNode(t *testing.T) {
	invs, params := Map(types.CategoryStepDetail, map[string]string{
		"workflow_id": "wf-1",
		"node_name":   "send-email",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpNodeDetail, invs[0].Operation)
	assert.Equal(t, "send-email", params[ParamNodeID])
}

func TestMap_ActivationDefaultsToActivate(t *testing.T) {
	invs, params := Map(types.CategoryActivation, map[string]string{
		"workflow_id": "wf-1",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpSetWorkflowActive, invs[0].Operation)
	assert.Equal(t, "true", params[ParamActive])
}

func TestMap_ActivationExplicitFlagKept(t *testing.T) {
	_, params := Map(types.CategoryActivation, map[string]string{
		"workflow_id": "wf-1",
		"active":      "false",
	})

	assert.Equal(t, "false", params[ParamActive])
}

func TestMap_StatusOverviewYieldsTwoOperations(t *testing.T) {
	invs, _ := Map(types.CategoryStatusOverview, nil)

	require.Len(t, invs, 2)
	assert.Equal(t, OpListWorkflows, invs[0].Operation)
	assert.Equal(t, OpAllErrorsSummary, invs[1].Operation)
}

func TestMap_TerminalCategoriesYieldNothing(t *testing.T) {
	for _, c := range []types.Category{
		types.CategoryGreeting,
		types.CategoryDanger,
		types.CategoryHelp,
		types.CategoryClarification,
	} {
		invs, _ := Map(c, map[string]string{"workflow_id": "wf-1"})
		assert.Empty(t, invs, "category %s must map to no operations", c)
	}
}

func TestMap_UnknownCategory(t *testing.T) {
	invs, params := Map(types.Category("BOGUS"), map[string]string{"x": "y"})
	assert.Empty(t, invs)
	assert.Nil(t, params)
}

func TestMap_Idempotent(t *testing.T) {
	raw := map[string]string{
		"workflow_name": "Orders",
		"node_name":     "  validate ",
		"empty":         "   ",
	}

	invs1, params1 := Map(types.CategoryStepDetail, raw)
	invs2, params2 := Map(types.CategoryStepDetail, raw)

	assert.Equal(t, invs1, invs2)
	assert.Equal(t, params1, params2)
	assert.Equal(t, "Orders", raw["workflow_name"], "input map must not be mutated")
}

func TestMap_InvocationParamsAreIndependent(t *testing.T) {
	invs, params := Map(types.CategoryWorkflowStatus, map[string]string{
		"workflow_id": "wf-1",
	})
	require.Len(t, invs, 1)

	invs[0].Parameters["workflow_id"] = "mutated"

	assert.Equal(t, "wf-1", params[ParamWorkflowID], "normalized set must not alias invocation params")

	multi, _ := Map(types.CategoryStatusOverview, nil)
	require.Len(t, multi, 2)

	multi[0].Parameters["injected"] = "x"

	assert.NotContains(t, multi[1].Parameters, "injected", "sibling invocations must not share a map")
}

func TestMap_BlankValuesDropped(t *testing.T) {
	invs, _ := Map(types.CategoryWorkflowDetail, map[string]string{
		"workflow_id": "   ",
	})

	require.Len(t, invs, 1)
	assert.Equal(t, OpListWorkflows, invs[0].Operation, "blank id counts as absent")
}

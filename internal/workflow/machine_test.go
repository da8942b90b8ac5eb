package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
)

func TestApplicationMachine_Edges(t *testing.T) {
	legal := map[[2]model.ApplicationStatus]bool{
		{model.ApplicationPending, model.ApplicationApproved}: true,
		{model.ApplicationPending, model.ApplicationRejected}: true,
		{model.ApplicationApproved, model.ApplicationPending}: true,
		{model.ApplicationRejected, model.ApplicationPending}: true,
	}
	states := ApplicationMachine.States()
	require.Len(t, states, 3)
	for _, from := range states {
		for _, to := range states {
			assert.Equalf(t, legal[[2]model.ApplicationStatus{from, to}], ApplicationMachine.Can(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPlanMachine_TerminalStates(t *testing.T) {
	assert.False(t, PlanMachine.Terminal(model.PlanActive))
	assert.True(t, PlanMachine.Terminal(model.PlanCompleted))
	assert.True(t, PlanMachine.Terminal(model.PlanCanceled))
	assert.False(t, PlanMachine.Can(model.PlanCompleted, model.PlanActive))
	assert.False(t, PlanMachine.Can(model.PlanCanceled, model.PlanCompleted))
}

func TestReportMachine_Edges(t *testing.T) {
	legal := map[[2]model.ReportStatus]bool{
		{model.ReportPending, model.ReportInProgress}:  true,
		{model.ReportInProgress, model.ReportResolved}: true,
		{model.ReportResolved, model.ReportClosed}:     true,
		{model.ReportPending, model.ReportClosed}:      true,
		{model.ReportInProgress, model.ReportClosed}:   true,
	}
	for _, from := range ReportMachine.States() {
		for _, to := range ReportMachine.States() {
			assert.Equalf(t, legal[[2]model.ReportStatus{from, to}], ReportMachine.Can(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, ReportMachine.Terminal(model.ReportClosed))
}

func TestMachine_CheckReturnsTransitionError(t *testing.T) {
	err := PlanMachine.Check(model.PlanCompleted, model.PlanCanceled)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)

	var te *apperr.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "treatment_plan", te.Machine)
	assert.Equal(t, "Completed", te.From)
	assert.Equal(t, "Canceled", te.To)

	assert.NoError(t, PlanMachine.Check(model.PlanActive, model.PlanCanceled))
}

func TestMachine_SameStateIsIllegal(t *testing.T) {
	assert.False(t, ApplicationMachine.Can(model.ApplicationPending, model.ApplicationPending))
	assert.False(t, PlanMachine.Can(model.PlanActive, model.PlanActive))
	assert.False(t, ReportMachine.Can(model.ReportPending, model.ReportPending))
}

func TestMachine_Known(t *testing.T) {
	assert.True(t, ApplicationMachine.Known(model.ApplicationRejected))
	assert.False(t, ApplicationMachine.Known("archived"))
	assert.False(t, PlanMachine.Known("active"), "plan states are case-sensitive")
}

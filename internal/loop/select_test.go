package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectRoleFirstRun(t *testing.T) {
	d := SelectRole(IterationState{}, Flags{}, Signals{FeatureListExists: false})
	assert.Equal(t, RoleInitializer, d.Role)

	d = SelectRole(IterationState{}, Flags{TicketBound: true}, Signals{FeatureListExists: false})
	assert.Equal(t, RoleJiraInitializer, d.Role)
}

func TestSelectRoleCleanerTakesPriorityOverEverything(t *testing.T) {
	d := SelectRole(IterationState{Iteration: 5}, Flags{ManagerFrequency: 5}, Signals{
		FeatureListExists: true,
		SignedOff:         true,
	})
	assert.Equal(t, RoleCleaner, d.Role)
}

func TestSelectRoleCleanerNotPickedOnceCleanedUp(t *testing.T) {
	d := SelectRole(IterationState{}, Flags{}, Signals{
		FeatureListExists:    true,
		SignedOff:            true,
		CleanupReportPresent: true,
	})
	assert.NotEqual(t, RoleCleaner, d.Role)
}

func TestSelectRoleTriggerManagerFileConsumed(t *testing.T) {
	d := SelectRole(IterationState{}, Flags{}, Signals{
		FeatureListExists:  true,
		TriggerManagerFile: true,
	})
	assert.Equal(t, RoleManager, d.Role)
	assert.True(t, d.ConsumeTriggerManager)
	assert.True(t, d.ExternallyTriggered)
}

func TestSelectRoleManagerFirstConsumedOnce(t *testing.T) {
	d := SelectRole(IterationState{HasRunManagerFirst: false}, Flags{RunManagerFirst: true}, Signals{FeatureListExists: true})
	assert.Equal(t, RoleManager, d.Role)
	assert.True(t, d.ConsumeManagerFirst)

	d2 := SelectRole(IterationState{HasRunManagerFirst: true}, Flags{RunManagerFirst: true}, Signals{FeatureListExists: true, AllFeaturesPassing: false})
	assert.Equal(t, RoleCoder, d2.Role, "manager-first must not re-trigger once consumed")
}

func TestSelectRolePeriodicManagerGatedByQA(t *testing.T) {
	d := SelectRole(IterationState{Iteration: 5}, Flags{ManagerFrequency: 5}, Signals{
		FeatureListExists: true,
		CompletedPresent:  true,
	})
	assert.Equal(t, RoleQA, d.Role, "periodic manager with COMPLETED present and no QA_PASSED substitutes qa")

	d2 := SelectRole(IterationState{Iteration: 5}, Flags{ManagerFrequency: 5}, Signals{
		FeatureListExists: true,
		CompletedPresent:  true,
		QAPassedPresent:   true,
	})
	assert.Equal(t, RoleManager, d2.Role)
}

func TestSelectRoleAllFeaturesPassingTriggersManager(t *testing.T) {
	d := SelectRole(IterationState{Iteration: 3}, Flags{ManagerFrequency: 100}, Signals{
		FeatureListExists:  true,
		AllFeaturesPassing: true,
	})
	assert.Equal(t, RoleManager, d.Role)
}

func TestSelectRoleCompletedWithoutSignoffTriggersManager(t *testing.T) {
	d := SelectRole(IterationState{Iteration: 1}, Flags{ManagerFrequency: 100}, Signals{
		FeatureListExists: true,
		CompletedPresent:  true,
	})
	assert.Equal(t, RoleQA, d.Role)
}

func TestSelectRoleDefaultCoder(t *testing.T) {
	d := SelectRole(IterationState{Iteration: 3}, Flags{ManagerFrequency: 5}, Signals{FeatureListExists: true})
	assert.Equal(t, RoleCoder, d.Role)

	d2 := SelectRole(IterationState{Iteration: 3}, Flags{ManagerFrequency: 5, TicketBound: true}, Signals{FeatureListExists: true})
	assert.Equal(t, RoleJiraWorker, d2.Role)
}

func TestSelectRoleForcedManagerTurnSkipsQAGateUnlessCompleted(t *testing.T) {
	d := SelectRole(IterationState{}, Flags{}, Signals{
		FeatureListExists:  true,
		TriggerManagerFile: true,
	})
	assert.Equal(t, RoleManager, d.Role, "file-triggered manager is not QA-gated when COMPLETED is absent")

	d2 := SelectRole(IterationState{}, Flags{}, Signals{
		FeatureListExists:  true,
		TriggerManagerFile: true,
		CompletedPresent:   true,
	})
	assert.Equal(t, RoleQA, d2.Role, "COMPLETED present still gates behind QA even for a forced manager turn")
}

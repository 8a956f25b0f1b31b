package loop

// SelectRole is the pure prompt-role state machine (spec §4.G). It takes no
// action itself — callers apply ConsumeTriggerManager/ConsumeManagerFirst
// via applyDecision (loop.go) once the decision is made, keeping selection free of side
// effects so it can be unit tested directly.
//
// Rule order (first match wins), matching spec §4.G and
// base_agent.py's select_prompt/force_manager/is_ready_for_qa logic:
//  1. Signed off, cleanup not yet done -> cleaner.
//  2. First run (no feature list)      -> (jira-)initializer.
//  3. TRIGGER_MANAGER file present     -> manager, externally triggered.
//  4. manager-first flag, unconsumed   -> manager, forced.
//  5. iteration % manager_frequency    -> manager, periodic.
//  6. all features passing             -> manager, periodic.
//  7. COMPLETED present, not signed off -> manager, periodic.
//  8. otherwise                        -> (jira-)coder.
//
// Any manager turn is gated behind QA_PASSED only when COMPLETED is
// present: if QA has not yet passed, qa is substituted for manager. Manager
// turns reached while COMPLETED is absent (periodic, forced, or externally
// triggered) run unconditionally.
func SelectRole(state IterationState, flags Flags, sig Signals) Decision {
	if sig.SignedOff && !sig.CleanupReportPresent {
		return Decision{Role: RoleCleaner}
	}

	if !sig.FeatureListExists {
		if flags.TicketBound {
			return Decision{Role: RoleJiraInitializer}
		}
		return Decision{Role: RoleInitializer}
	}

	var (
		shouldRunManager    bool
		consumeTrigger      bool
		consumeManagerFirst bool
		externallyTriggered bool
	)

	switch {
	case sig.TriggerManagerFile:
		shouldRunManager, consumeTrigger, externallyTriggered = true, true, true
	case flags.RunManagerFirst && !state.HasRunManagerFirst:
		shouldRunManager, consumeManagerFirst = true, true
	case flags.ManagerFrequency > 0 && state.Iteration > 0 && state.Iteration%flags.ManagerFrequency == 0:
		shouldRunManager = true
	case sig.FeatureListExists && sig.AllFeaturesPassing:
		shouldRunManager = true
	case sig.CompletedPresent && !sig.SignedOff:
		shouldRunManager = true
	}

	if !shouldRunManager {
		if flags.TicketBound {
			return Decision{Role: RoleJiraWorker}
		}
		return Decision{Role: RoleCoder}
	}

	readyForQA := sig.CompletedPresent
	if readyForQA && !sig.QAPassedPresent {
		return Decision{
			Role:                  RoleQA,
			ConsumeTriggerManager: consumeTrigger,
			ConsumeManagerFirst:   consumeManagerFirst,
			ExternallyTriggered:   externallyTriggered,
		}
	}

	role := RoleManager
	if flags.TicketBound {
		role = RoleJiraManager
	}
	return Decision{
		Role:                  role,
		ConsumeTriggerManager: consumeTrigger,
		ConsumeManagerFirst:   consumeManagerFirst,
		ExternallyTriggered:   externallyTriggered,
	}
}

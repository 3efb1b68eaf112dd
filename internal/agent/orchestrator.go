package agent

// maxPlanSteps caps capability invocations per turn.
const maxPlanSteps = 3

// orchestratorStage decides the next transition after validation: finish,
// retry the failed call once, advance the plan, or give up. Each entry
// increments the step counter.
func (p *Pipeline) orchestratorStage(st *TurnState) {
	st.StepCount++

	if st.Pending == ActionValid {
		if len(st.Plan) > 0 && st.StepCount < maxPlanSteps {
			p.popPlanStep(st)
			return
		}
		st.Pending = ActionValid
		return
	}

	// Validation failed. One retry per capability invocation.
	if st.RetryCount == 0 {
		st.RetryCount = 1
		st.Pending = ActionRetry
		return
	}

	// Retry exhausted. Skip ahead when a plan remains, otherwise fall back
	// to partial results if any prior call succeeded.
	if len(st.Plan) > 0 {
		p.popPlanStep(st)
		return
	}
	for _, record := range st.CallHistory {
		if record.Success {
			st.Pending = ActionValid
			return
		}
	}
	st.Pending = ActionInvalid
}

// popPlanStep loads the next plan step as the current call target. The
// retry budget resets for the new capability.
func (p *Pipeline) popPlanStep(st *TurnState) {
	step := st.Plan[0]
	st.Plan = st.Plan[1:]
	st.Route = step.Route
	st.Capability = step.Capability
	st.Arguments = step.Arguments
	st.Result = nil
	st.Error = ""
	st.RetryCount = 0
	st.Pending = ActionNextStep
}

package agent

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/danshapiro/finsight/internal/capability"
)

// Dependencies are the injected collaborators for a pipeline. Client and
// Registry are required; Classifier and Narrator fall back to deterministic
// implementations when nil.
type Dependencies struct {
	Client     capability.Client
	Registry   *capability.Registry
	Classifier Classifier
	Narrator   Narrator
	Logger     zerolog.Logger
}

// Pipeline drives one turn through the stage sequence.
type Pipeline struct {
	client     capability.Client
	registry   capabilityLookup
	classifier Classifier
	narrator   Narrator
	logger     zerolog.Logger
}

func NewPipeline(deps Dependencies) (*Pipeline, error) {
	if deps.Client == nil {
		return nil, fmt.Errorf("pipeline requires a portfolio client")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("pipeline requires a capability registry")
	}
	p := &Pipeline{
		client:     deps.Client,
		registry:   deps.Registry,
		classifier: deps.Classifier,
		narrator:   deps.Narrator,
		logger:     deps.Logger,
	}
	if p.classifier == nil {
		p.classifier = KeywordClassifier(deps.Registry)
	}
	return p, nil
}

// TurnInput is the transport-facing invocation contract for one turn.
type TurnInput struct {
	Messages    []Message
	CallHistory []CallRecord
}

// stage iteration guard; generous relative to the plan cap.
const maxStageTransitions = 16

// RunTurn executes one full turn: route, execute, validate, orchestrate,
// then a terminal stage. The returned state always carries a final
// response.
func (p *Pipeline) RunTurn(ctx context.Context, input TurnInput) *TurnState {
	st := &TurnState{
		TurnID:      newTurnID(),
		Messages:    append([]Message(nil), input.Messages...),
		CallHistory: append([]CallRecord(nil), input.CallHistory...),
		Arguments:   map[string]any{},
	}
	logger := p.logger.With().Str("turn_id", st.TurnID).Logger()
	query := latestUserQuery(st.Messages)

	// Composite requests expand into a plan before routing; the first step
	// becomes the current target and the rest queue up. Injection markers
	// suppress plan expansion so the clarify guard still applies.
	if plan := detectPlan(p.registry, query); len(plan) > 0 && !containsInjectionMarker(query) {
		logger.Debug().Int("steps", len(plan)).Msg("multi-step plan detected")
		first := plan[0]
		st.Plan = plan[1:]
		st.Route = first.Route
		st.Capability = first.Capability
		st.Arguments = first.Arguments
		st.Pending = ActionToolSelected
	} else {
		p.routerStage(ctx, st)
	}

	if st.Pending == ActionAmbiguous {
		p.clarifierStage(st)
		return st
	}

	for i := 0; i < maxStageTransitions; i++ {
		p.executorStage(ctx, st)
		p.validatorStage(st)
		p.orchestratorStage(st)

		switch st.Pending {
		case ActionValid:
			p.synthesizerStage(ctx, st)
			return st
		case ActionInvalid:
			p.errorHandlerStage(st)
			return st
		case ActionRetry, ActionNextStep:
			continue
		default:
			st.Error = "API_ERROR"
			p.errorHandlerStage(st)
			return st
		}
	}

	logger.Error().Msg("stage transition guard tripped")
	st.Error = "API_ERROR"
	p.errorHandlerStage(st)
	return st
}

func newTurnID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

package agent

import (
	"context"
	"fmt"
)

// routerStage resolves the user's text into a route, capability, and
// sanitized arguments. The injected classifier is consulted first; any
// fault falls back to the keyword classifier. When the outcome is clarify
// and the text looks like a follow-up, prior turns are scanned to recover
// the intent.
func (p *Pipeline) routerStage(ctx context.Context, st *TurnState) {
	query := latestUserQuery(st.Messages)

	decision, err := p.classify(ctx, query, st.Messages)
	if err != nil {
		p.logger.Debug().Err(err).Msg("classifier failed, using keyword fallback")
		decision, _ = KeywordClassifier(p.registry)(ctx, query, st.Messages)
	}
	normalized := normalizeDecision(p.registry, query, decision)

	if Route(normalized.Route) == RouteClarify {
		if isFollowUpQuery(query) {
			if recovered, ok := p.recoverFromHistory(st, query); ok {
				applyDecision(st, recovered)
				return
			}
			if recovered, ok := p.recoverFromMessages(st.Messages, query); ok {
				applyDecision(st, recovered)
				return
			}
		}
		st.Route = RouteClarify
		st.Capability = ""
		st.Arguments = map[string]any{}
		st.Result = nil
		st.Error = ""
		st.Pending = ActionAmbiguous
		return
	}

	applyDecision(st, normalized)
}

// classify calls the injected classifier with a panic guard; a panic is
// reported as an error so the keyword fallback takes over.
func (p *Pipeline) classify(ctx context.Context, query string, messages []Message) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier panic: %v", r)
		}
	}()
	return p.classifier(ctx, query, messages)
}

func applyDecision(st *TurnState, d Decision) {
	st.Route = Route(d.Route)
	st.Capability = d.Capability
	st.Arguments = d.Arguments
	st.Result = nil
	st.Error = ""
	st.Pending = ActionToolSelected
}

// recoverFromHistory re-derives arguments for the most recent non-clarify
// call record against the current text.
func (p *Pipeline) recoverFromHistory(st *TurnState, query string) (Decision, bool) {
	for i := len(st.CallHistory) - 1; i >= 0; i-- {
		record := st.CallHistory[i]
		if !validRoutes[record.Route] || record.Route == RouteClarify {
			continue
		}
		def, ok := p.registry.Lookup(record.Capability)
		if !ok {
			continue
		}
		return Decision{
			Route:      string(record.Route),
			Capability: def.Name,
			Arguments:  def.Sanitize(query, record.Arguments),
		}, true
	}
	return Decision{}, false
}

// recoverFromMessages keyword-routes earlier user messages, newest first,
// skipping the current one.
func (p *Pipeline) recoverFromMessages(messages []Message, query string) (Decision, bool) {
	if len(messages) < 2 {
		return Decision{}, false
	}
	for i := len(messages) - 2; i >= 0; i-- {
		if !isUserMessage(messages[i]) {
			continue
		}
		route := routeFromKeywords(trimText(messages[i].Text))
		if route == RouteClarify {
			continue
		}
		def, ok := p.registry.ForRoute(string(route))
		if !ok {
			continue
		}
		return Decision{
			Route:      string(route),
			Capability: def.Name,
			Arguments:  def.Sanitize(query, nil),
		}, true
	}
	return Decision{}, false
}

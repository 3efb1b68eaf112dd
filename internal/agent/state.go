// Package agent implements the request orchestration pipeline: a router
// picks a capability for the user's text, an executor runs it, a validator
// checks the payload, and an orchestrator decides whether to retry, advance
// a multi-step plan, or hand off to a terminal stage.
package agent

import (
	"github.com/danshapiro/finsight/internal/capability"
)

// Route names one analysis intent. The clarify route is terminal and has no
// capability bound to it.
type Route string

const (
	RoutePortfolio    Route = "portfolio"
	RouteTransactions Route = "transactions"
	RouteTax          Route = "tax"
	RouteAllocation   Route = "allocation"
	RouteCompliance   Route = "compliance"
	RouteMarket       Route = "market"
	RouteClarify      Route = "clarify"
)

var validRoutes = map[Route]bool{
	RoutePortfolio:    true,
	RouteTransactions: true,
	RouteTax:          true,
	RouteAllocation:   true,
	RouteCompliance:   true,
	RouteMarket:       true,
	RouteClarify:      true,
}

// PendingAction steers the next pipeline transition.
type PendingAction string

const (
	ActionToolSelected PendingAction = "tool_selected"
	ActionAmbiguous    PendingAction = "ambiguous_or_unsupported"
	ActionValid        PendingAction = "valid"
	ActionInvalid      PendingAction = "invalid_or_error"
	ActionRetry        PendingAction = "retry"
	ActionNextStep     PendingAction = "next_step"
)

// Message is one conversational turn entry.
type Message struct {
	Role string `json:"role" msgpack:"role"`
	Text string `json:"text" msgpack:"text"`
}

// CallRecord tracks one executed capability invocation. Records are
// append-only; retries and plan steps each get their own entry.
type CallRecord struct {
	Route       Route          `json:"route" msgpack:"route"`
	Capability  string         `json:"capability" msgpack:"capability"`
	Arguments   map[string]any `json:"arguments" msgpack:"arguments"`
	Success     bool           `json:"success" msgpack:"success"`
	Error       string         `json:"error,omitempty" msgpack:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty" msgpack:"data,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty" msgpack:"fingerprint,omitempty"`
}

// PlanStep is one queued follow-on capability in a multi-step plan.
type PlanStep struct {
	Route      Route          `json:"route"`
	Capability string         `json:"capability"`
	Arguments  map[string]any `json:"arguments"`
}

// ResponseCategory classifies the terminal stage that produced the answer.
type ResponseCategory string

const (
	CategoryAnalysis      ResponseCategory = "analysis"
	CategoryClarification ResponseCategory = "clarification"
	CategoryError         ResponseCategory = "error"
)

// FinalResponse is the normalized answer payload built by a terminal stage.
type FinalResponse struct {
	Category    ResponseCategory `json:"category"`
	Message     string           `json:"message"`
	Capability  string           `json:"capability,omitempty"`
	Data        map[string]any   `json:"data,omitempty"`
	Suggestions []string         `json:"suggestions"`
}

// TurnState is the working state for one request turn. Stages mutate it in
// sequence; the transport layer projects the finished state into events.
type TurnState struct {
	TurnID      string
	Messages    []Message
	Route       Route
	Capability  string
	Arguments   map[string]any
	Result      *capability.Result
	CallHistory []CallRecord
	Error       string
	Pending     PendingAction
	Final       *FinalResponse
	StepCount   int
	Plan        []PlanStep
	RetryCount  int
}

// latestUserQuery returns the most recent user message text.
func latestUserQuery(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		role := messages[i].Role
		if role == "user" || role == "human" {
			return trimText(messages[i].Text)
		}
	}
	if len(messages) > 0 {
		return trimText(messages[len(messages)-1].Text)
	}
	return ""
}

func isUserMessage(m Message) bool {
	return m.Role == "user" || m.Role == "human"
}

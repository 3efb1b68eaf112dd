package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danshapiro/finsight/internal/agent"
)

func analysisState(message string) *agent.TurnState {
	return &agent.TurnState{
		Capability: "analyze_portfolio_performance",
		CallHistory: []agent.CallRecord{{
			Route:      agent.RoutePortfolio,
			Capability: "analyze_portfolio_performance",
			Arguments:  map[string]any{"time_period": "ytd"},
			Success:    true,
		}},
		Final: &agent.FinalResponse{
			Category:    agent.CategoryAnalysis,
			Message:     message,
			Capability:  "analyze_portfolio_performance",
			Suggestions: []string{},
		},
	}
}

func eventTypes(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestProjectEventsSuccess(t *testing.T) {
	st := analysisState("Portfolio net performance is 5.00% for the selected range.")
	events := ProjectEvents(st, "t1", 0, DefaultChunkSize)

	types := eventTypes(events)
	assert.Equal(t, "tool_call", types[0])
	assert.Equal(t, "tool_result", types[1])
	assert.Equal(t, "done", types[len(types)-1])
	assert.Contains(t, types, "token")

	done := events[len(events)-1]
	assert.Equal(t, "t1", done.Payload["thread_id"])
	history := done.Payload["call_history"].([]map[string]any)
	require.Len(t, history, 1)
	assert.Equal(t, "portfolio", history[0]["route"])
}

func TestProjectEventsTokenChunking(t *testing.T) {
	st := analysisState(strings.Repeat("a", 150))
	events := ProjectEvents(st, "t1", 0, 64)

	var chunks []string
	for _, ev := range events {
		if ev.Type == "token" {
			chunks = append(chunks, ev.Payload["content"].(string))
		}
	}
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 64)
	assert.Len(t, chunks[1], 64)
	assert.Len(t, chunks[2], 22)
	assert.Equal(t, strings.Repeat("a", 150), strings.Join(chunks, ""))
}

func TestProjectEventsHistoryOffset(t *testing.T) {
	st := analysisState("ok")
	st.CallHistory = append([]agent.CallRecord{{
		Route:      agent.RouteTax,
		Capability: "estimate_capital_gains_tax",
		Success:    true,
	}}, st.CallHistory...)

	events := ProjectEvents(st, "t1", 1, DefaultChunkSize)

	// Only the new record gets a tool_call/tool_result pair, but the done
	// payload carries the full history.
	var toolCalls []Event
	for _, ev := range events {
		if ev.Type == "tool_call" {
			toolCalls = append(toolCalls, ev)
		}
	}
	require.Len(t, toolCalls, 1)
	assert.Equal(t, "analyze_portfolio_performance", toolCalls[0].Payload["tool"])

	done := events[len(events)-1]
	assert.Len(t, done.Payload["call_history"], 2)
}

func TestProjectEventsErrorTurn(t *testing.T) {
	st := &agent.TurnState{
		Error:      "API_TIMEOUT",
		Capability: "analyze_portfolio_performance",
		CallHistory: []agent.CallRecord{{
			Route:      agent.RoutePortfolio,
			Capability: "analyze_portfolio_performance",
			Success:    false,
			Error:      "API_TIMEOUT",
		}},
		Final: &agent.FinalResponse{Category: agent.CategoryError, Message: "nope"},
	}
	events := ProjectEvents(st, "t1", 0, DefaultChunkSize)

	last := events[len(events)-1]
	assert.Equal(t, "error", last.Type)
	assert.Equal(t, "API_TIMEOUT", last.Payload["code"])
	assert.NotContains(t, eventTypes(events), "done")
	assert.NotContains(t, eventTypes(events), "token")
}

func TestProjectEventsFailedCallCarriesErrorTag(t *testing.T) {
	st := analysisState("partial results")
	st.CallHistory = append(st.CallHistory, agent.CallRecord{
		Route:      agent.RouteCompliance,
		Capability: "check_compliance",
		Success:    false,
		Error:      "API_ERROR",
	})
	events := ProjectEvents(st, "t1", 0, DefaultChunkSize)

	var results []Event
	for _, ev := range events {
		if ev.Type == "tool_result" {
			results = append(results, ev)
		}
	}
	require.Len(t, results, 2)
	assert.Equal(t, true, results[0].Payload["success"])
	assert.Equal(t, "API_ERROR", results[1].Payload["error"])
}

func TestResolveErrorCodeFallsBackToHistory(t *testing.T) {
	st := &agent.TurnState{
		CallHistory: []agent.CallRecord{
			{Error: "API_TIMEOUT"},
			{Error: "EMPTY_PORTFOLIO"},
		},
	}
	assert.Equal(t, "EMPTY_PORTFOLIO", resolveErrorCode(st))
	assert.Equal(t, "API_ERROR", resolveErrorCode(&agent.TurnState{}))
}

func TestChunkTextEmpty(t *testing.T) {
	assert.Nil(t, chunkText("", 64))
}

package server

import (
	"github.com/danshapiro/finsight/internal/agent"
)

// Event is one externally visible protocol event.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// DefaultChunkSize is the token fragment length for streamed responses.
const DefaultChunkSize = 64

func chunkText(content string, chunkSize int) []string {
	if content == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var chunks []string
	for start := 0; start < len(content); start += chunkSize {
		end := start + chunkSize
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, content[start:end])
	}
	return chunks
}

// resolveErrorCode extracts the error tag from a finished turn: the state
// error wins, then the newest call record's error, then a generic tag.
func resolveErrorCode(st *agent.TurnState) string {
	if st.Error != "" {
		return st.Error
	}
	for i := len(st.CallHistory) - 1; i >= 0; i-- {
		if st.CallHistory[i].Error != "" {
			return st.CallHistory[i].Error
		}
	}
	return "API_ERROR"
}

func historyPayload(records []agent.CallRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, record := range records {
		entry := map[string]any{
			"route":      string(record.Route),
			"capability": record.Capability,
			"arguments":  record.Arguments,
			"success":    record.Success,
		}
		if record.Error != "" {
			entry["error"] = record.Error
		}
		out = append(out, entry)
	}
	return out
}

// ProjectEvents maps a finished turn state to the ordered event sequence
// the transport streams out. historyOffset skips records that belong to
// prior turns of the same thread.
func ProjectEvents(st *agent.TurnState, threadID string, historyOffset, chunkSize int) []Event {
	var events []Event

	emitted := st.CallHistory
	if historyOffset > 0 && historyOffset <= len(st.CallHistory) {
		emitted = st.CallHistory[historyOffset:]
	}
	for _, record := range emitted {
		args := record.Arguments
		if args == nil {
			args = map[string]any{}
		}
		events = append(events, Event{
			Type:    "tool_call",
			Payload: map[string]any{"tool": record.Capability, "args": args},
		})
		result := map[string]any{"tool": record.Capability, "success": record.Success}
		if record.Error != "" {
			result["error"] = record.Error
		}
		events = append(events, Event{Type: "tool_result", Payload: result})
	}

	if st.Final == nil || st.Final.Category == agent.CategoryError {
		code := resolveErrorCode(st)
		return append(events, Event{
			Type:    "error",
			Payload: map[string]any{"code": code, "message": agent.SafeErrorMessage(code)},
		})
	}

	for _, chunk := range chunkText(st.Final.Message, chunkSize) {
		events = append(events, Event{Type: "token", Payload: map[string]any{"content": chunk}})
	}
	events = append(events, Event{
		Type: "done",
		Payload: map[string]any{
			"thread_id": threadID,
			"response": map[string]any{
				"category":    string(st.Final.Category),
				"message":     st.Final.Message,
				"capability":  st.Final.Capability,
				"data":        st.Final.Data,
				"suggestions": st.Final.Suggestions,
			},
			"call_history": historyPayload(st.CallHistory),
		},
	})
	return events
}

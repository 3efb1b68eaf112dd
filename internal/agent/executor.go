package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/danshapiro/finsight/internal/capability"
)

// executorStage runs the selected capability. It never lets a fault escape:
// unregistered capabilities, argument-shape faults, and panics all become
// failure results. Exactly one call record is appended per invocation.
func (p *Pipeline) executorStage(ctx context.Context, st *TurnState) {
	def, registered := p.registry.Lookup(st.Capability)

	var result capability.Result
	switch {
	case st.Capability == "" || !registered:
		result = capability.Fail("UNSUPPORTED_TOOL")
	case def.ValidateArgs(st.Arguments) != nil:
		// Malformed argument shape: fall back to the capability's own
		// defaults for empty text and try once more.
		fallback := def.Defaults("")
		if def.ValidateArgs(fallback) != nil {
			result = capability.Fail("API_ERROR")
		} else {
			result = p.invoke(ctx, def, fallback)
		}
	default:
		result = p.invoke(ctx, def, st.Arguments)
	}

	st.Result = &result
	args := st.Arguments
	if args == nil {
		args = map[string]any{}
	}
	record := CallRecord{
		Route:       st.Route,
		Capability:  st.Capability,
		Arguments:   args,
		Success:     result.Success,
		Error:       result.Error,
		Data:        result.Data,
		Fingerprint: callFingerprint(st.Route, st.Capability, args),
	}
	st.CallHistory = append(st.CallHistory, record)

	p.logger.Debug().
		Str("capability", st.Capability).
		Bool("success", result.Success).
		Str("error", result.Error).
		Msg("capability executed")
}

func (p *Pipeline) invoke(ctx context.Context, def capability.Definition, args map[string]any) (result capability.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("capability", def.Name).Any("panic", r).Msg("capability panicked")
			result = capability.Fail("API_ERROR")
		}
	}()
	return def.Run(ctx, p.client, args)
}

// callFingerprint identifies an invocation by route, capability, and
// argument content for deduplication in logs and event consumers.
func callFingerprint(route Route, capabilityName string, args map[string]any) string {
	encoded, err := json.Marshal(args)
	if err != nil {
		encoded = []byte("{}")
	}
	sum := blake3.Sum256([]byte(string(route) + "|" + capabilityName + "|" + string(encoded)))
	return fmt.Sprintf("%x", sum[:8])
}

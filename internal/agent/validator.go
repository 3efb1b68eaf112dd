package agent

import "math"

// validatorStage checks the execution result in order: presence, success,
// non-empty payload, finite numbers, then capability-specific shape rules.
// The first failed check wins.
func (p *Pipeline) validatorStage(st *TurnState) {
	if st.Result == nil {
		st.Pending = ActionInvalid
		st.Error = "NO_TOOL_RESULT"
		return
	}
	if !st.Result.Success {
		code := st.Result.Error
		if code == "" {
			code = "API_ERROR"
		}
		st.Pending = ActionInvalid
		st.Error = code
		return
	}
	if st.Capability == "" {
		st.Pending = ActionInvalid
		st.Error = "UNSUPPORTED_TOOL"
		return
	}
	payload := st.Result.Data
	if len(payload) == 0 {
		st.Pending = ActionInvalid
		st.Error = "EMPTY_TOOL_PAYLOAD"
		return
	}
	if !onlyFiniteNumbers(payload) {
		st.Pending = ActionInvalid
		st.Error = "NON_FINITE_VALUE"
		return
	}
	if code := validatePayload(st.Capability, payload); code != "" {
		st.Pending = ActionInvalid
		st.Error = code
		return
	}
	st.Pending = ActionValid
	st.Error = ""
}

func onlyFiniteNumbers(v any) bool {
	switch x := v.(type) {
	case float64:
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		f := float64(x)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	case map[string]any:
		for _, value := range x {
			if !onlyFiniteNumbers(value) {
				return false
			}
		}
		return true
	case []any:
		for _, value := range x {
			if !onlyFiniteNumbers(value) {
				return false
			}
		}
		return true
	case []map[string]any:
		for _, value := range x {
			if !onlyFiniteNumbers(value) {
				return false
			}
		}
		return true
	}
	return true
}

func validatePayload(capabilityName string, payload map[string]any) string {
	switch capabilityName {
	case "analyze_portfolio_performance":
		return validatePerformancePayload(payload)
	case "categorize_transactions":
		return validateTransactionPayload(payload)
	case "estimate_capital_gains_tax":
		return validateTaxPayload(payload)
	case "check_compliance":
		return validateCompliancePayload(payload)
	case "get_market_data":
		return validateMarketPayload(payload)
	default:
		return validateAllocationPayload(payload)
	}
}

func validatePerformancePayload(payload map[string]any) string {
	performance, ok := payload["performance"].(map[string]any)
	if !ok {
		return "INVALID_PERFORMANCE_PAYLOAD"
	}
	if pct, ok := asNumber(performance["netPerformancePercentage"]); ok {
		if pct < -100 || pct > 10000 {
			return "UNSANE_RETURN_VALUE"
		}
	}
	return ""
}

func validateTransactionPayload(payload map[string]any) string {
	if !isNonNegativeInt(payload["total_transactions"]) {
		return "INVALID_TRANSACTION_COUNT"
	}
	return ""
}

func validateTaxPayload(payload map[string]any) string {
	liability, ok := asNumber(payload["combined_liability"])
	if !ok || liability < 0 {
		return "INVALID_TAX_PAYLOAD"
	}
	return ""
}

func validateAllocationPayload(payload map[string]any) string {
	if !isNonNegativeInt(payload["holdings_count"]) {
		return "INVALID_HOLDINGS_COUNT"
	}
	allocation, ok := payload["current_allocation"].(map[string]any)
	if !ok || len(allocation) == 0 {
		return "INVALID_ALLOCATION_PAYLOAD"
	}
	var sum float64
	for _, v := range allocation {
		value, ok := asNumber(v)
		if !ok {
			return "INVALID_ALLOCATION_PAYLOAD"
		}
		sum += value
	}
	holdings, _ := asNumber(payload["holdings_count"])
	if holdings > 0 && math.Abs(sum-100) > 1 {
		return "INVALID_ALLOCATION_SUM"
	}
	return ""
}

func validateCompliancePayload(payload map[string]any) string {
	if !isNonNegativeInt(payload["total_violations"]) || !isNonNegativeInt(payload["total_warnings"]) {
		return "INVALID_COMPLIANCE_PAYLOAD"
	}
	return ""
}

func validateMarketPayload(payload map[string]any) string {
	if !isNonNegativeInt(payload["total_holdings"]) {
		return "INVALID_MARKET_DATA_PAYLOAD"
	}
	switch payload["holdings"].(type) {
	case []any, []map[string]any:
		return ""
	}
	return "INVALID_MARKET_DATA_PAYLOAD"
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func isNonNegativeInt(v any) bool {
	switch x := v.(type) {
	case int:
		return x >= 0
	case int64:
		return x >= 0
	case float64:
		return x >= 0 && x == math.Trunc(x)
	}
	return false
}

package agent

import (
	"context"
	"fmt"
)

var supportedCapabilities = []string{
	"Portfolio performance analysis across supported date ranges",
	"Transaction categorization and activity summaries",
	"Capital gains tax estimation (FIFO-based, informational only)",
	"Asset allocation and concentration analysis by target profile",
}

var clarifySuggestions = []string{
	"How is my portfolio doing ytd?",
	"Categorize my transactions for max range.",
	"Estimate my 2025 capital gains tax in middle bracket.",
	"Analyze my allocation with a balanced profile.",
}

var errorSuggestions = []string{
	"Show my portfolio performance for ytd.",
	"Categorize my transactions for max range.",
	"Estimate my capital gains tax for this year.",
}

var safeErrorMessages = map[string]string{
	"INVALID_TIME_PERIOD":         "Please use a valid period such as ytd, 1y, or max.",
	"INVALID_TAX_YEAR":            "Tax year must be between 2020 and the current year.",
	"INVALID_INCOME_BRACKET":      "Income bracket must be low, middle, or high.",
	"INVALID_TARGET_PROFILE":      "Target profile must be conservative, balanced, or aggressive.",
	"EMPTY_PORTFOLIO":             "No holdings found. Use the 'Load Sample Portfolio' button on the home page, or add your own investments in Ghostfolio.",
	"API_TIMEOUT":                 "I could not reach Ghostfolio in time. Please check that it is running.",
	"API_ERROR":                   "Received an error from the portfolio service. Please try again.",
	"AUTH_REQUIRED":               "Please sign in or create an account to get portfolio insights.",
	"AUTH_FAILED":                 "Your session has expired. Please sign in again.",
	"UNSUPPORTED_TOOL":            "I could not map your request to a supported tool.",
	"EMPTY_TOOL_PAYLOAD":          "I received an empty response and could not continue safely.",
	"NON_FINITE_VALUE":            "I received invalid numeric values and stopped safely.",
	"INVALID_PERFORMANCE_PAYLOAD": "Performance data came back in an unexpected format.",
	"INVALID_TRANSACTION_COUNT":   "Transaction data looked incomplete or malformed.",
	"INVALID_TAX_PAYLOAD":         "Tax estimate data came back in an unexpected format.",
	"INVALID_ALLOCATION_PAYLOAD":  "Allocation data came back in an unexpected format.",
	"INVALID_HOLDINGS_COUNT":      "Holdings count was invalid, so I stopped safely.",
	"INVALID_ALLOCATION_SUM":      "Allocation percentages do not form a sane total (~100%).",
	"INVALID_CHECK_TYPE":          "Check type must be all, wash_sale, pattern_day_trading, or concentration.",
	"INVALID_COMPLIANCE_PAYLOAD":  "Compliance check data came back in an unexpected format.",
	"INVALID_METRIC":              "One or more requested metrics are not supported.",
	"INVALID_MARKET_DATA_PAYLOAD": "Market data came back in an unexpected format.",
	"SYMBOLS_NOT_FOUND":           "None of the requested symbols were found in your portfolio.",
}

// SafeErrorMessage maps an internal error tag to a user-facing message.
// Unknown tags get a generic fallback so no internal detail leaks.
func SafeErrorMessage(code string) string {
	if msg, ok := safeErrorMessages[code]; ok {
		return msg
	}
	return "I ran into an issue while analyzing your request. Please try a narrower query."
}

// synthesizerStage builds the final analysis answer. The injected narrator
// is preferred; any fault falls back to the templated summary.
func (p *Pipeline) synthesizerStage(ctx context.Context, st *TurnState) {
	var summary string
	if p.narrator != nil && st.Result != nil {
		query := latestUserQuery(st.Messages)
		text, err := p.narrate(ctx, query, st.Capability, st.Result.Data)
		if err == nil && trimText(text) != "" {
			summary = trimText(text)
		}
	}
	if summary == "" {
		summary = p.buildSummary(st)
	}

	var data map[string]any
	if st.Result != nil {
		data = st.Result.Data
	}
	st.Final = &FinalResponse{
		Category:    CategoryAnalysis,
		Message:     summary,
		Capability:  st.Capability,
		Data:        data,
		Suggestions: []string{},
	}
	st.Messages = append(st.Messages, Message{Role: "assistant", Text: summary})
	st.Pending = ActionValid
}

// narrate calls the injected narrator with the same panic guard the
// classifier gets; a panic falls back to the templated summary.
func (p *Pipeline) narrate(ctx context.Context, query, capabilityName string, data map[string]any) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("narrator panic: %v", r)
		}
	}()
	return p.narrator(ctx, query, capabilityName, data)
}

func (p *Pipeline) buildSummary(st *TurnState) string {
	if st.Capability == "" || st.Result == nil || st.Result.Data == nil {
		return "Analysis complete."
	}
	payload := st.Result.Data

	switch st.Capability {
	case "analyze_portfolio_performance":
		if performance, ok := payload["performance"].(map[string]any); ok {
			if pct, ok := asNumber(performance["netPerformancePercentage"]); ok {
				return fmt.Sprintf("Portfolio net performance is %.2f%% for the selected range.", pct)
			}
		}
		return "Portfolio performance data is ready."
	case "categorize_transactions":
		if total, ok := asNumber(payload["total_transactions"]); ok {
			return fmt.Sprintf("Transaction categorization is complete. I found %d activities in the selected range.", int(total))
		}
		return "Transaction categorization is complete."
	case "estimate_capital_gains_tax":
		return fmt.Sprintf("Capital gains estimate is ready. Estimated combined liability for %v is %s.",
			payload["tax_year"], formatCurrency(payload["combined_liability"]))
	case "check_compliance":
		violations, _ := asNumber(payload["total_violations"])
		warnings, _ := asNumber(payload["total_warnings"])
		return fmt.Sprintf("Compliance screening is complete. Found %d violation(s) and %d warning(s).",
			int(violations), int(warnings))
	case "get_market_data":
		holdings, _ := asNumber(payload["total_holdings"])
		valueStr := ""
		if total, ok := asNumber(payload["total_market_value"]); ok && total != 0 {
			valueStr = fmt.Sprintf(" with total value $%s", formatCurrency(total))
		}
		return fmt.Sprintf("Market data retrieved. Showing data for %d holding(s)%s.", int(holdings), valueStr)
	default:
		count := 0
		if warnings, ok := payload["concentration_warnings"].([]map[string]any); ok {
			count = len(warnings)
		} else if warnings, ok := payload["concentration_warnings"].([]any); ok {
			count = len(warnings)
		}
		return fmt.Sprintf("Allocation analysis is complete. I found %d concentration warning(s).", count)
	}
}

func formatCurrency(v any) string {
	if f, ok := asNumber(v); ok {
		return groupThousands(fmt.Sprintf("%.2f", f))
	}
	return "n/a"
}

// groupThousands inserts comma separators into a fixed-point decimal string.
func groupThousands(s string) string {
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	dot := len(s)
	for i, c := range s {
		if c == '.' {
			dot = i
			break
		}
	}
	intPart, frac := s[:dot], s[dot:]
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	result := string(out) + frac
	if neg {
		result = "-" + result
	}
	return result
}

// clarifierStage answers ambiguous or out-of-scope requests with the
// capability list and example prompts.
func (p *Pipeline) clarifierStage(st *TurnState) {
	capabilitiesBlock := ""
	for _, line := range supportedCapabilities {
		capabilitiesBlock += "- " + line + "\n"
	}
	message := "I can help with financial analysis inside Ghostfolio, but I could not map that request " +
		"to one supported tool.\n\n" +
		"Supported capabilities:\n" +
		capabilitiesBlock + "\n" +
		"Try asking: 'How is my portfolio doing ytd?' or " +
		"'Am I diversified enough for a balanced profile?'"

	st.Final = &FinalResponse{
		Category:    CategoryClarification,
		Message:     message,
		Suggestions: append([]string(nil), clarifySuggestions...),
	}
	st.Messages = append(st.Messages, Message{Role: "assistant", Text: message})
	st.Pending = ActionAmbiguous
	st.Error = ""
}

// errorHandlerStage produces user-safe recovery guidance for the resolved
// error code.
func (p *Pipeline) errorHandlerStage(st *TurnState) {
	code := st.Error
	if code == "" && st.Result != nil {
		code = st.Result.Error
	}
	if code == "" {
		code = "API_ERROR"
	}
	message := SafeErrorMessage(code) + "\n\n" +
		"You can try again with one focused request, for example: " +
		"'Show my portfolio performance for ytd.'"

	st.Final = &FinalResponse{
		Category:    CategoryError,
		Message:     message,
		Capability:  st.Capability,
		Suggestions: append([]string(nil), errorSuggestions...),
	}
	st.Messages = append(st.Messages, Message{Role: "assistant", Text: message})
	st.Pending = ActionInvalid
}

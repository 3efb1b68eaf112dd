package capability

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

var assetClasses = []string{
	"EQUITY",
	"FIXED_INCOME",
	"LIQUIDITY",
	"COMMODITY",
	"REAL_ESTATE",
	"ALTERNATIVE_INVESTMENT",
}

var targetAllocations = map[string]map[string]float64{
	"conservative": {
		"EQUITY":                 40.0,
		"FIXED_INCOME":           50.0,
		"LIQUIDITY":              10.0,
		"COMMODITY":              0.0,
		"REAL_ESTATE":            0.0,
		"ALTERNATIVE_INVESTMENT": 0.0,
	},
	"balanced": {
		"EQUITY":                 60.0,
		"FIXED_INCOME":           30.0,
		"LIQUIDITY":              10.0,
		"COMMODITY":              0.0,
		"REAL_ESTATE":            0.0,
		"ALTERNATIVE_INVESTMENT": 0.0,
	},
	"aggressive": {
		"EQUITY":                 80.0,
		"FIXED_INCOME":           15.0,
		"LIQUIDITY":              5.0,
		"COMMODITY":              0.0,
		"REAL_ESTATE":            0.0,
		"ALTERNATIVE_INVESTMENT": 0.0,
	},
}

const concentrationThresholdPct = 25.0

const allocationDisclaimer = "Analysis for informational purposes only. Not financial advice."

func extractHoldings(payload map[string]any) map[string]map[string]any {
	raw, ok := payload["holdings"].(map[string]any)
	if !ok {
		return nil
	}
	holdings := map[string]map[string]any{}
	for symbol, h := range raw {
		if holding, ok := h.(map[string]any); ok {
			holdings[symbol] = holding
		}
	}
	return holdings
}

// toNumericPct scales 0..1 ratios up to percentages.
func toNumericPct(v any) float64 {
	f, ok := asFloat(v)
	if !ok {
		return 0
	}
	if f >= 0 && f <= 1 {
		return f * 100
	}
	return f
}

func aggregateAllocation(holdings map[string]map[string]any) (map[string]float64, []map[string]any, int) {
	current := map[string]float64{}
	for _, class := range assetClasses {
		current[class] = 0
	}
	var warnings []map[string]any

	for symbol, holding := range holdings {
		class, _ := holding["assetClass"].(string)
		pct := toNumericPct(holding["allocationInPercentage"])
		if _, known := current[class]; known {
			current[class] += pct
		} else {
			// Missing asset class still counts toward totals.
			current["EQUITY"] += pct
		}
		if pct > concentrationThresholdPct {
			warnings = append(warnings, map[string]any{
				"symbol":           symbol,
				"pct_of_portfolio": roundMoney(pct),
				"threshold":        concentrationThresholdPct,
			})
		}
	}

	var total float64
	for _, v := range current {
		total += v
	}
	if total > 0 && math.Abs(total-100) > 1 {
		for class, v := range current {
			current[class] = (v / total) * 100
		}
	}
	for class, v := range current {
		current[class] = roundMoney(v)
	}

	sort.SliceStable(warnings, func(i, j int) bool {
		pi, _ := asFloat(warnings[i]["pct_of_portfolio"])
		pj, _ := asFloat(warnings[j]["pct_of_portfolio"])
		if pi != pj {
			return pi > pj
		}
		si, _ := warnings[i]["symbol"].(string)
		sj, _ := warnings[j]["symbol"].(string)
		return si < sj
	})
	return current, warnings, len(holdings)
}

func formatAssetClass(class string) string {
	words := strings.Split(strings.ToLower(strings.ReplaceAll(class, "_", " ")), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func rebalancingSuggestions(drift map[string]float64, targetProfile string) []string {
	type classDrift struct {
		class string
		value float64
	}
	var over, under []classDrift
	for class, v := range drift {
		if v > 0 {
			over = append(over, classDrift{class, v})
		} else if v < 0 {
			under = append(under, classDrift{class, v})
		}
	}
	sort.Slice(over, func(i, j int) bool {
		if over[i].value != over[j].value {
			return over[i].value > over[j].value
		}
		return over[i].class < over[j].class
	})
	sort.Slice(under, func(i, j int) bool {
		if under[i].value != under[j].value {
			return under[i].value < under[j].value
		}
		return under[i].class < under[j].class
	})

	var suggestions []string
	if len(over) > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"Consider trimming %s by about %v%% to align with the %s profile.",
			formatAssetClass(over[0].class), roundMoney(over[0].value), targetProfile))
	}
	if len(under) > 0 {
		suggestions = append(suggestions, fmt.Sprintf(
			"Consider increasing %s by about %v%% to align with the %s profile.",
			formatAssetClass(under[0].class), roundMoney(math.Abs(under[0].value)), targetProfile))
	}
	if len(suggestions) == 0 {
		suggestions = append(suggestions, "Current allocation is already close to the selected target profile.")
	}
	return suggestions
}

func runAdviseAssetAllocation(ctx context.Context, client Client, args map[string]any) Result {
	targetProfile, _ := stringArg(args, "target_profile")
	if targetProfile == "" {
		targetProfile = "balanced"
	}
	targets, ok := targetAllocations[targetProfile]
	if !ok {
		return Fail("INVALID_TARGET_PROFILE").With("target_profile", targetProfile)
	}

	details, err := client.PortfolioDetails(ctx)
	if err != nil {
		return failFromClient(err, map[string]any{"target_profile": targetProfile})
	}
	holdings := extractHoldings(details)
	if len(holdings) == 0 {
		return Fail("EMPTY_PORTFOLIO").With("target_profile", targetProfile)
	}

	current, warnings, holdingsCount := aggregateAllocation(holdings)

	target := map[string]any{}
	driftOut := map[string]any{}
	drift := map[string]float64{}
	currentOut := map[string]any{}
	for _, class := range assetClasses {
		target[class] = roundMoney(targets[class])
		d := roundMoney(current[class] - targets[class])
		drift[class] = d
		driftOut[class] = d
		currentOut[class] = current[class]
	}

	if warnings == nil {
		warnings = []map[string]any{}
	}
	payload := map[string]any{
		"target_profile":          targetProfile,
		"current_allocation":      currentOut,
		"target_allocation":       target,
		"drift":                   driftOut,
		"concentration_warnings":  warnings,
		"rebalancing_suggestions": rebalancingSuggestions(drift, targetProfile),
		"holdings_count":          holdingsCount,
		"disclaimer":              allocationDisclaimer,
	}
	return OK(payload).
		With("source", "allocation_advisor").
		With("target_profile", targetProfile)
}

func allocationDefinition() Definition {
	return Definition{
		Name:        "advise_asset_allocation",
		Route:       "allocation",
		Description: "Compare current allocation against a target profile and suggest rebalancing.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"target_profile": map[string]any{
					"type": "string",
					"enum": []any{"conservative", "balanced", "aggressive"},
				},
			},
			"additionalProperties": false,
		},
		Defaults: func(query string) map[string]any {
			return map[string]any{"target_profile": extractTargetProfile(query, "balanced")}
		},
		Sanitize: func(query string, raw map[string]any) map[string]any {
			profile := extractTargetProfile(query, "balanced")
			if s, ok := stringArg(raw, "target_profile"); ok {
				if _, valid := targetAllocations[s]; valid {
					profile = s
				}
			}
			return map[string]any{"target_profile": profile}
		},
		Run: runAdviseAssetAllocation,
	}
}

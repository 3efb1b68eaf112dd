package capability

import (
	"context"
	"sort"
	"strings"
	"time"
)

const shortTermCutoffDays = 365

const taxDisclaimer = "Simplified estimate using FIFO. Not financial advice."

var taxRatesByBracket = map[string]map[string]float64{
	"low":    {"short_term": 0.22, "long_term": 0.0},
	"middle": {"short_term": 0.24, "long_term": 0.15},
	"high":   {"short_term": 0.24, "long_term": 0.20},
}

type orderActivity struct {
	symbol       string
	activityType string
	date         time.Time
	quantity     float64
	unitPrice    float64
}

type buyLot struct {
	acquiredAt time.Time
	remaining  float64
	unitPrice  float64
}

func parseActivityTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func activitySymbol(activity map[string]any) string {
	if profile, ok := activity["SymbolProfile"].(map[string]any); ok {
		if symbol, ok := profile["symbol"].(string); ok && strings.TrimSpace(symbol) != "" {
			return strings.TrimSpace(symbol)
		}
	}
	return ""
}

func normalizeTradeActivities(raw []any) []orderActivity {
	var out []orderActivity
	for _, item := range raw {
		activity, ok := item.(map[string]any)
		if !ok {
			continue
		}
		activityType, _ := activity["type"].(string)
		if activityType != "BUY" && activityType != "SELL" {
			continue
		}
		symbol := activitySymbol(activity)
		if symbol == "" {
			continue
		}
		date, ok := parseActivityTime(activity["date"])
		if !ok {
			continue
		}
		quantity, ok := asFloat(activity["quantity"])
		if !ok || quantity <= 0 {
			continue
		}
		unitPrice, ok := asFloat(activity["unitPrice"])
		if !ok || unitPrice < 0 {
			continue
		}
		out = append(out, orderActivity{
			symbol:       symbol,
			activityType: activityType,
			date:         date,
			quantity:     quantity,
			unitPrice:    unitPrice,
		})
	}
	return out
}

func termSummary(rate float64, entries []map[string]any) map[string]any {
	var gains, losses float64
	for _, entry := range entries {
		gl, _ := asFloat(entry["gain_loss"])
		if gl > 0 {
			gains += gl
		} else if gl < 0 {
			losses += gl
		}
	}
	gains = roundMoney(gains)
	losses = roundMoney(losses)
	net := roundMoney(gains + losses)
	taxable := net
	if taxable < 0 {
		taxable = 0
	}
	return map[string]any{
		"total_gains":   gains,
		"total_losses":  losses,
		"net":           net,
		"estimated_tax": roundMoney(taxable * rate),
		"rate_applied":  rate,
	}
}

// runEstimateCapitalGainsTax matches sells against buy lots FIFO per symbol
// and reports realized gains for the requested tax year.
func runEstimateCapitalGainsTax(ctx context.Context, client Client, args map[string]any) Result {
	taxYear, ok := intArg(args, "tax_year")
	if !ok {
		taxYear = currentYear()
	}
	incomeBracket, _ := stringArg(args, "income_bracket")
	if incomeBracket == "" {
		incomeBracket = "middle"
	}

	if taxYear < 2020 || taxYear > currentYear() {
		return Fail("INVALID_TAX_YEAR").With("tax_year", taxYear)
	}
	rates, ok := taxRatesByBracket[incomeBracket]
	if !ok {
		return Fail("INVALID_INCOME_BRACKET").With("income_bracket", incomeBracket)
	}

	orders, err := client.Orders(ctx, "")
	if err != nil {
		return failFromClient(err, map[string]any{
			"tax_year":       taxYear,
			"income_bracket": incomeBracket,
		})
	}
	rawActivities, listOK := orders["activities"].([]any)
	if !listOK {
		return Fail("API_ERROR").
			With("tax_year", taxYear).
			With("income_bracket", incomeBracket)
	}

	bySymbol := map[string][]orderActivity{}
	for _, activity := range normalizeTradeActivities(rawActivities) {
		bySymbol[activity.symbol] = append(bySymbol[activity.symbol], activity)
	}
	symbols := make([]string, 0, len(bySymbol))
	for symbol := range bySymbol {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	perAsset := []map[string]any{}
	for _, symbol := range symbols {
		activities := bySymbol[symbol]
		sort.SliceStable(activities, func(i, j int) bool {
			return activities[i].date.Before(activities[j].date)
		})

		var lots []buyLot
		for _, activity := range activities {
			if activity.activityType == "BUY" {
				lots = append(lots, buyLot{
					acquiredAt: activity.date,
					remaining:  activity.quantity,
					unitPrice:  activity.unitPrice,
				})
				continue
			}

			remaining := activity.quantity
			for remaining > 0 && len(lots) > 0 {
				lot := &lots[0]
				matched := remaining
				if lot.remaining < matched {
					matched = lot.remaining
				}
				costBasis := matched * lot.unitPrice
				proceeds := matched * activity.unitPrice
				gainLoss := proceeds - costBasis

				lot.remaining -= matched
				remaining -= matched
				if lot.remaining <= 0 {
					lots = lots[1:]
				}

				if activity.date.Year() != taxYear {
					continue
				}
				holdingDays := int(activity.date.Sub(lot.acquiredAt).Hours() / 24)
				holdingPeriod := "short_term"
				if holdingDays > shortTermCutoffDays {
					holdingPeriod = "long_term"
				}
				perAsset = append(perAsset, map[string]any{
					"symbol":         symbol,
					"gain_loss":      roundMoney(gainLoss),
					"holding_period": holdingPeriod,
					"cost_basis":     roundMoney(costBasis),
					"proceeds":       roundMoney(proceeds),
				})
			}
		}
	}

	var shortTerm, longTerm []map[string]any
	for _, entry := range perAsset {
		if entry["holding_period"] == "long_term" {
			longTerm = append(longTerm, entry)
		} else {
			shortTerm = append(shortTerm, entry)
		}
	}
	shortSummary := termSummary(rates["short_term"], shortTerm)
	longSummary := termSummary(rates["long_term"], longTerm)
	shortTax, _ := asFloat(shortSummary["estimated_tax"])
	longTax, _ := asFloat(longSummary["estimated_tax"])

	payload := map[string]any{
		"tax_year":           taxYear,
		"income_bracket":     incomeBracket,
		"short_term":         shortSummary,
		"long_term":          longSummary,
		"combined_liability": roundMoney(shortTax + longTax),
		"per_asset":          perAsset,
		"disclaimer":         taxDisclaimer,
	}
	return OK(payload).
		With("source", "capital_gains_tax_estimator").
		With("tax_year", taxYear).
		With("income_bracket", incomeBracket)
}

func taxDefinition() Definition {
	return Definition{
		Name:        "estimate_capital_gains_tax",
		Route:       "tax",
		Description: "Estimate capital gains tax liability using FIFO lot matching.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tax_year": map[string]any{
					"type":    "integer",
					"minimum": 2020,
				},
				"income_bracket": map[string]any{
					"type": "string",
					"enum": []any{"low", "middle", "high"},
				},
			},
			"additionalProperties": false,
		},
		Defaults: func(query string) map[string]any {
			return map[string]any{
				"tax_year":       extractTaxYear(query, currentYear()),
				"income_bracket": extractIncomeBracket(query, "middle"),
			}
		},
		Sanitize: func(query string, raw map[string]any) map[string]any {
			taxYear := extractTaxYear(query, currentYear())
			if y, ok := intArg(raw, "tax_year"); ok && y >= 2020 && y <= currentYear() {
				taxYear = y
			}
			bracket := extractIncomeBracket(query, "middle")
			if s, ok := stringArg(raw, "income_bracket"); ok {
				if _, valid := taxRatesByBracket[s]; valid {
					bracket = s
				}
			}
			return map[string]any{"tax_year": taxYear, "income_bracket": bracket}
		},
		Run: runEstimateCapitalGainsTax,
	}
}

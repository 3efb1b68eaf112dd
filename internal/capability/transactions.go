package capability

import (
	"context"
	"math"

	"github.com/danshapiro/finsight/internal/ghostfolio"
)

var activityTypes = []string{"BUY", "SELL", "DIVIDEND", "FEE", "INTEREST", "LIABILITY"}

func activityValue(activity map[string]any) float64 {
	if v, ok := asFloat(activity["value"]); ok {
		return v
	}
	quantity, okQ := asFloat(activity["quantity"])
	unitPrice, okP := asFloat(activity["unitPrice"])
	if okQ && okP {
		return quantity * unitPrice
	}
	return 0
}

func sumActivityValues(activities []map[string]any) float64 {
	var total float64
	for _, a := range activities {
		total += activityValue(a)
	}
	return roundMoney(total)
}

func runCategorizeTransactions(ctx context.Context, client Client, args map[string]any) Result {
	dateRange, _ := stringArg(args, "date_range")
	if dateRange == "" {
		dateRange = "max"
	}
	if !ghostfolio.ValidDateRanges[dateRange] {
		return Fail("INVALID_TIME_PERIOD").With("date_range", dateRange)
	}

	orders, err := client.Orders(ctx, dateRange)
	if err != nil {
		return failFromClient(err, map[string]any{"date_range": dateRange})
	}
	rawActivities, ok := orders["activities"].([]any)
	if !ok {
		return Fail("API_ERROR").With("date_range", dateRange)
	}

	grouped := map[string][]map[string]any{}
	for _, t := range activityTypes {
		grouped[t] = []map[string]any{}
	}
	for _, raw := range rawActivities {
		activity, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		activityType, _ := activity["type"].(string)
		if _, known := grouped[activityType]; known {
			grouped[activityType] = append(grouped[activityType], activity)
		}
	}

	byType := map[string]any{}
	byTypeCounts := map[string]any{}
	for _, t := range activityTypes {
		byType[t] = grouped[t]
		byTypeCounts[t] = len(grouped[t])
	}

	payload := map[string]any{
		"total_transactions": len(rawActivities),
		"by_type":            byType,
		"by_type_counts":     byTypeCounts,
		"summary": map[string]any{
			"buy_total":       sumActivityValues(grouped["BUY"]),
			"sell_total":      sumActivityValues(grouped["SELL"]),
			"dividend_total":  sumActivityValues(grouped["DIVIDEND"]),
			"interest_total":  sumActivityValues(grouped["INTEREST"]),
			"fee_total":       sumActivityValues(grouped["FEE"]),
			"liability_total": sumActivityValues(grouped["LIABILITY"]),
		},
	}
	if count, ok := intArg(orders, "count"); ok {
		payload["reported_count"] = count
	}

	return OK(payload).
		With("source", "transaction_categorizer").
		With("date_range", dateRange)
}

func transactionsDefinition() Definition {
	return Definition{
		Name:        "categorize_transactions",
		Route:       "transactions",
		Description: "Retrieve and group transactions by type (BUY/SELL/DIVIDEND/FEE/INTEREST/LIABILITY).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"date_range": map[string]any{
					"type": "string",
					"enum": []any{"1d", "wtd", "mtd", "ytd", "1y", "5y", "max"},
				},
			},
			"additionalProperties": false,
		},
		Defaults: func(query string) map[string]any {
			return map[string]any{"date_range": extractDateRange(query, "max")}
		},
		Sanitize: func(query string, raw map[string]any) map[string]any {
			dateRange := extractDateRange(query, "max")
			if s, ok := stringArg(raw, "date_range"); ok && ghostfolio.ValidDateRanges[s] {
				dateRange = s
			}
			return map[string]any{"date_range": dateRange}
		},
		Run: runCategorizeTransactions,
	}
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

package capability

import (
	"context"
	"sort"
	"strings"
)

var validMetrics = map[string]bool{
	"price":          true,
	"change":         true,
	"change_percent": true,
	"currency":       true,
	"market_value":   true,
	"quantity":       true,
	"all":            true,
}

var defaultMetrics = []string{"price", "change", "change_percent", "currency", "market_value"}

const marketDisclaimer = "Market data sourced from Ghostfolio portfolio. Prices may be delayed."

func firstFloat(holding map[string]any, keys ...string) any {
	for _, key := range keys {
		if f, ok := asFloat(holding[key]); ok && f != 0 {
			return f
		}
	}
	for _, key := range keys {
		if f, ok := asFloat(holding[key]); ok {
			return f
		}
	}
	return nil
}

func holdingEntry(symbol string, holding map[string]any, metrics []string) map[string]any {
	entry := map[string]any{"symbol": symbol}
	useAll := false
	requested := map[string]bool{}
	for _, m := range metrics {
		requested[m] = true
		if m == "all" {
			useAll = true
		}
	}

	if useAll || requested["price"] {
		entry["price"] = firstFloat(holding, "marketPrice", "averagePrice", "unitPrice")
	}
	if useAll || requested["change"] {
		entry["change"] = firstFloat(holding, "netPerformance")
	}
	if useAll || requested["change_percent"] {
		var pct any
		if f, ok := asFloat(holding["netPerformancePercentage"]); ok {
			// Ghostfolio reports values in the 0..1 range as ratios.
			if f >= -1 && f <= 100 {
				f = roundMoney(f * 100)
			}
			pct = f
		}
		entry["change_percent"] = pct
	}
	if useAll || requested["currency"] {
		currency, _ := holding["currency"].(string)
		if currency == "" {
			currency = "USD"
		}
		entry["currency"] = currency
	}
	if useAll || requested["market_value"] {
		entry["market_value"] = firstFloat(holding, "value", "marketValue")
	}
	if useAll || requested["quantity"] {
		entry["quantity"] = firstFloat(holding, "quantity")
	}

	name, _ := holding["name"].(string)
	if name == "" {
		name = symbol
	}
	entry["name"] = name
	class, _ := holding["assetClass"].(string)
	if class == "" {
		class = "UNKNOWN"
	}
	entry["asset_class"] = class
	subClass, _ := holding["assetSubClass"].(string)
	if subClass == "" {
		subClass = "UNKNOWN"
	}
	entry["asset_sub_class"] = subClass
	return entry
}

func runGetMarketData(ctx context.Context, client Client, args map[string]any) Result {
	metrics, ok := stringSliceArg(args, "metrics")
	if !ok {
		metrics = append([]string(nil), defaultMetrics...)
	}
	for _, m := range metrics {
		if !validMetrics[m] {
			valid := make([]string, 0, len(validMetrics))
			for name := range validMetrics {
				valid = append(valid, name)
			}
			sort.Strings(valid)
			return Fail("INVALID_METRIC").
				With("requested_metric", m).
				With("valid_metrics", valid)
		}
	}

	details, err := client.PortfolioDetails(ctx)
	if err != nil {
		return failFromClient(err, nil)
	}
	rawHoldings, ok := details["holdings"].(map[string]any)
	if !ok || len(rawHoldings) == 0 {
		return Fail("EMPTY_PORTFOLIO")
	}

	var wantSymbols map[string]bool
	if symbols, ok := stringSliceArg(args, "symbols"); ok {
		wantSymbols = map[string]bool{}
		for _, s := range symbols {
			wantSymbols[strings.ToUpper(s)] = true
		}
	}

	results := []map[string]any{}
	var totalMarketValue float64
	for symbol, raw := range rawHoldings {
		holding, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if wantSymbols != nil && !wantSymbols[strings.ToUpper(symbol)] {
			continue
		}
		results = append(results, holdingEntry(symbol, holding, metrics))
		if mv, ok := asFloat(holding["value"]); ok && mv != 0 {
			totalMarketValue += mv
		} else if mv, ok := asFloat(holding["marketValue"]); ok {
			totalMarketValue += mv
		}
	}

	if len(results) == 0 {
		if wantSymbols != nil {
			requested := make([]string, 0, len(wantSymbols))
			for s := range wantSymbols {
				requested = append(requested, s)
			}
			sort.Strings(requested)
			return Fail("SYMBOLS_NOT_FOUND").With("requested_symbols", requested)
		}
		return Fail("EMPTY_PORTFOLIO")
	}

	sort.SliceStable(results, func(i, j int) bool {
		vi, _ := asFloat(results[i]["market_value"])
		vj, _ := asFloat(results[j]["market_value"])
		return vi > vj
	})

	payload := map[string]any{
		"holdings":           results,
		"total_holdings":     len(results),
		"total_market_value": roundMoney(totalMarketValue),
		"metrics_requested":  metrics,
		"disclaimer":         marketDisclaimer,
	}
	return OK(payload).With("source", "market_data")
}

func marketDefinition() Definition {
	return Definition{
		Name:        "get_market_data",
		Route:       "market",
		Description: "Fetch current prices and market metrics for portfolio holdings.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbols": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"metrics": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "string",
						"enum": []any{"price", "change", "change_percent", "currency", "market_value", "quantity", "all"},
					},
				},
			},
			"additionalProperties": false,
		},
		Defaults: func(query string) map[string]any {
			args := map[string]any{"metrics": append([]string(nil), defaultMetrics...)}
			if symbols := extractSymbols(query); len(symbols) > 0 {
				args["symbols"] = symbols
			}
			return args
		},
		Sanitize: func(query string, raw map[string]any) map[string]any {
			args := map[string]any{}
			metrics := append([]string(nil), defaultMetrics...)
			if requested, ok := stringSliceArg(raw, "metrics"); ok {
				// Filter into a fresh slice; requested may share its
				// backing array with a stored call record.
				valid := make([]string, 0, len(requested))
				for _, m := range requested {
					if validMetrics[m] {
						valid = append(valid, m)
					}
				}
				if len(valid) > 0 {
					metrics = valid
				}
			}
			args["metrics"] = metrics

			if symbols, ok := stringSliceArg(raw, "symbols"); ok {
				args["symbols"] = symbols
			} else if symbols := extractSymbols(query); len(symbols) > 0 {
				args["symbols"] = symbols
			}
			return args
		},
		Run: runGetMarketData,
	}
}

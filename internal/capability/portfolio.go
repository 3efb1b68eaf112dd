package capability

import (
	"context"

	"github.com/danshapiro/finsight/internal/ghostfolio"
)

// reshapeDetails maps the details summary block into the performance shape
// the rest of the pipeline expects, so downstream validation and synthesis
// see the same numbers the Ghostfolio dashboard shows.
func reshapeDetails(details map[string]any) map[string]any {
	summary, _ := details["summary"].(map[string]any)
	pick := func(key string) any {
		if summary != nil {
			if v, ok := summary[key]; ok && v != nil {
				return v
			}
		}
		return 0
	}
	return map[string]any{
		"performance": map[string]any{
			"currentNetWorth":                            pick("currentNetWorth"),
			"currentValueInBaseCurrency":                 pick("currentValueInBaseCurrency"),
			"netPerformance":                             pick("netPerformance"),
			"netPerformancePercentage":                   pick("netPerformancePercentage"),
			"netPerformancePercentageWithCurrencyEffect": pick("netPerformancePercentageWithCurrencyEffect"),
			"netPerformanceWithCurrencyEffect":           pick("netPerformanceWithCurrencyEffect"),
			"totalInvestment":                            pick("totalInvestment"),
			"totalInvestmentValueWithCurrencyEffect":     pick("totalInvestmentValueWithCurrencyEffect"),
		},
		"hasErrors": false,
	}
}

func runPortfolioPerformance(ctx context.Context, client Client, args map[string]any) Result {
	timePeriod, _ := stringArg(args, "time_period")
	if timePeriod == "" {
		timePeriod = "max"
	}
	if !ghostfolio.ValidDateRanges[timePeriod] {
		return Fail("INVALID_TIME_PERIOD").With("time_period", timePeriod)
	}

	details, err := client.PortfolioDetails(ctx)
	if err != nil {
		return failFromClient(err, map[string]any{"time_period": timePeriod})
	}
	return OK(reshapeDetails(details)).
		With("source", "portfolio_performance").
		With("time_period", timePeriod)
}

func portfolioDefinition() Definition {
	return Definition{
		Name:        "analyze_portfolio_performance",
		Route:       "portfolio",
		Description: "Analyze portfolio returns and performance for a specific date range.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"time_period": map[string]any{
					"type": "string",
					"enum": []any{"1d", "wtd", "mtd", "ytd", "1y", "5y", "max"},
				},
			},
			"additionalProperties": false,
		},
		Defaults: func(query string) map[string]any {
			return map[string]any{"time_period": extractDateRange(query, "ytd")}
		},
		Sanitize: sanitizePortfolioArgs,
		Run:      runPortfolioPerformance,
	}
}

func sanitizePortfolioArgs(query string, raw map[string]any) map[string]any {
	period := extractDateRange(query, "ytd")
	if s, ok := stringArg(raw, "time_period"); ok && ghostfolio.ValidDateRanges[s] {
		period = s
	}
	return map[string]any{"time_period": period}
}

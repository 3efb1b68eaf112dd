package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	washSaleWindowDays         = 30
	patternDayTradeThreshold   = 4
	patternDayTradeWindowDays  = 5
	complianceConcentrationPct = 25.0
)

const complianceDisclaimer = "Informational screening only. Not legal or tax advice. " +
	"Consult a qualified professional for compliance decisions."

var validCheckTypes = map[string]bool{
	"all":                 true,
	"wash_sale":           true,
	"pattern_day_trading": true,
	"concentration":       true,
}

type tradeEntry struct {
	symbol    string
	date      time.Time
	quantity  float64
	unitPrice float64
}

func complianceSymbol(activity map[string]any) string {
	if s := activitySymbol(activity); s != "" {
		return s
	}
	if s, ok := activity["symbol"].(string); ok && s != "" {
		return s
	}
	return "UNKNOWN"
}

func splitTrades(activities []any) (sells, buys []tradeEntry) {
	for _, raw := range activities {
		activity, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		activityType := strings.ToUpper(fmt.Sprint(activity["type"]))
		if activityType != "BUY" && activityType != "SELL" {
			continue
		}
		date, ok := parseActivityTime(activity["date"])
		if !ok {
			continue
		}
		quantity, _ := asFloat(activity["quantity"])
		unitPrice, _ := asFloat(activity["unitPrice"])
		entry := tradeEntry{
			symbol:    complianceSymbol(activity),
			date:      date,
			quantity:  quantity,
			unitPrice: unitPrice,
		}
		if activityType == "SELL" {
			sells = append(sells, entry)
		} else {
			buys = append(buys, entry)
		}
	}
	return sells, buys
}

// detectWashSales flags sells followed by a repurchase of the same symbol
// within the 30 day window.
func detectWashSales(activities []any) []map[string]any {
	sells, buys := splitTrades(activities)
	violations := []map[string]any{}
	for _, sell := range sells {
		for _, buy := range buys {
			if buy.symbol != sell.symbol {
				continue
			}
			daysDiff := int(buy.date.Sub(sell.date).Hours() / 24)
			if daysDiff > 0 && daysDiff <= washSaleWindowDays {
				violations = append(violations, map[string]any{
					"type":         "WASH_SALE",
					"symbol":       sell.symbol,
					"sell_date":    sell.date.Format("2006-01-02"),
					"rebuy_date":   buy.date.Format("2006-01-02"),
					"days_between": daysDiff,
					"description": fmt.Sprintf(
						"Sold %s on %s and repurchased on %s (%d days later, within %d-day window).",
						sell.symbol, sell.date.Format("2006-01-02"), buy.date.Format("2006-01-02"),
						daysDiff, washSaleWindowDays),
				})
			}
		}
	}
	return violations
}

// detectPatternDayTrading emits at most one warning for the first window
// that reaches the day trade threshold.
func detectPatternDayTrading(activities []any) []map[string]any {
	sells, buys := splitTrades(activities)

	buysByKey := map[string]int{}
	sellsByKey := map[string]int{}
	for _, b := range buys {
		buysByKey[b.symbol+"|"+b.date.Format("2006-01-02")]++
	}
	for _, s := range sells {
		sellsByKey[s.symbol+"|"+s.date.Format("2006-01-02")]++
	}

	dayTradesByDate := map[string][]string{}
	for key, buyCount := range buysByKey {
		if buyCount > 0 && sellsByKey[key] > 0 {
			parts := strings.SplitN(key, "|", 2)
			dayTradesByDate[parts[1]] = append(dayTradesByDate[parts[1]], parts[0])
		}
	}

	dates := make([]string, 0, len(dayTradesByDate))
	for date := range dayTradesByDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	warnings := []map[string]any{}
	for _, dateStr := range dates {
		end, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			continue
		}
		windowStart := end.AddDate(0, 0, -patternDayTradeWindowDays).Format("2006-01-02")
		tradeCount := 0
		symbolSet := map[string]bool{}
		for _, check := range dates {
			if check >= windowStart && check <= dateStr {
				tradeCount += len(dayTradesByDate[check])
				for _, s := range dayTradesByDate[check] {
					symbolSet[s] = true
				}
			}
		}
		if tradeCount >= patternDayTradeThreshold {
			symbols := make([]string, 0, len(symbolSet))
			for s := range symbolSet {
				symbols = append(symbols, s)
			}
			sort.Strings(symbols)
			warnings = append(warnings, map[string]any{
				"type":                 "PATTERN_DAY_TRADING",
				"window_end":           dateStr,
				"day_trades_in_window": tradeCount,
				"symbols":              symbols,
				"description": fmt.Sprintf(
					"%d day trade(s) detected in the %d-day window ending %s. "+
						"FINRA flags accounts with %d+ day trades in 5 business days as pattern day traders.",
					tradeCount, patternDayTradeWindowDays, dateStr, patternDayTradeThreshold),
			})
			break
		}
	}
	return warnings
}

func detectConcentrationRisk(holdings map[string]map[string]any) []map[string]any {
	warnings := []map[string]any{}
	var totalValue float64
	type position struct {
		symbol string
		value  float64
	}
	var positions []position

	for symbol, holding := range holdings {
		value, ok := asFloat(holding["value"])
		if !ok || value == 0 {
			value, _ = asFloat(holding["marketValue"])
		}
		totalValue += value
		positions = append(positions, position{symbol, value})
	}
	if totalValue <= 0 {
		return warnings
	}

	for _, p := range positions {
		pct := (p.value / totalValue) * 100
		if pct > complianceConcentrationPct {
			warnings = append(warnings, map[string]any{
				"type":             "CONCENTRATION",
				"symbol":           p.symbol,
				"pct_of_portfolio": roundMoney(pct),
				"threshold":        complianceConcentrationPct,
				"description": fmt.Sprintf(
					"%s represents %.1f%% of portfolio value, exceeding the %v%% concentration threshold.",
					p.symbol, pct, complianceConcentrationPct),
			})
		}
	}
	sort.SliceStable(warnings, func(i, j int) bool {
		pi, _ := asFloat(warnings[i]["pct_of_portfolio"])
		pj, _ := asFloat(warnings[j]["pct_of_portfolio"])
		return pi > pj
	})
	return warnings
}

func runCheckCompliance(ctx context.Context, client Client, args map[string]any) Result {
	checkType, _ := stringArg(args, "check_type")
	if checkType == "" {
		checkType = "all"
	}
	if !validCheckTypes[checkType] {
		return Fail("INVALID_CHECK_TYPE").With("check_type", checkType)
	}

	violations := []map[string]any{}
	warnings := []map[string]any{}

	if checkType == "all" || checkType == "wash_sale" || checkType == "pattern_day_trading" {
		orders, err := client.Orders(ctx, "")
		if err != nil {
			return failFromClient(err, map[string]any{"check_type": checkType})
		}
		activities, _ := orders["activities"].([]any)

		if checkType == "all" || checkType == "wash_sale" {
			violations = append(violations, detectWashSales(activities)...)
		}
		if checkType == "all" || checkType == "pattern_day_trading" {
			warnings = append(warnings, detectPatternDayTrading(activities)...)
		}
	}

	if checkType == "all" || checkType == "concentration" {
		details, err := client.PortfolioDetails(ctx)
		if err != nil {
			return failFromClient(err, map[string]any{"check_type": checkType})
		}
		holdings := extractHoldings(details)
		if len(holdings) > 0 {
			warnings = append(warnings, detectConcentrationRisk(holdings)...)
		}
	}

	payload := map[string]any{
		"check_type":       checkType,
		"violations":       violations,
		"warnings":         warnings,
		"total_violations": len(violations),
		"total_warnings":   len(warnings),
		"disclaimer":       complianceDisclaimer,
	}
	return OK(payload).
		With("source", "compliance_checker").
		With("check_type", checkType)
}

func complianceDefinition() Definition {
	return Definition{
		Name:        "check_compliance",
		Route:       "compliance",
		Description: "Screen portfolio for regulatory red flags (wash sales, pattern day trading, concentration risk).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"check_type": map[string]any{
					"type": "string",
					"enum": []any{"all", "wash_sale", "pattern_day_trading", "concentration"},
				},
			},
			"additionalProperties": false,
		},
		Defaults: func(query string) map[string]any {
			return map[string]any{"check_type": extractCheckType(query, "all")}
		},
		Sanitize: func(query string, raw map[string]any) map[string]any {
			checkType := extractCheckType(query, "all")
			if s, ok := stringArg(raw, "check_type"); ok && validCheckTypes[s] {
				checkType = s
			}
			return map[string]any{"check_type": checkType}
		},
		Run: runCheckCompliance,
	}
}

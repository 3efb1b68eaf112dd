package capability

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Text heuristics that derive default arguments from the raw user query.
// These run before any classifier output is merged in, so they must never
// produce values outside a capability's declared valid set.

var dateRangeTokenRe = regexp.MustCompile(`\b(1d|wtd|mtd|ytd|1y|5y|max)\b`)

func extractDateRange(query, fallback string) string {
	lowered := strings.ToLower(query)
	if m := dateRangeTokenRe.FindStringSubmatch(lowered); m != nil {
		return m[1]
	}
	switch {
	case strings.Contains(lowered, "year to date"):
		return "ytd"
	case strings.Contains(lowered, "today"), strings.Contains(lowered, "daily"):
		return "1d"
	case strings.Contains(lowered, "week"):
		return "wtd"
	case strings.Contains(lowered, "month"):
		return "mtd"
	case strings.Contains(lowered, "1 year"), strings.Contains(lowered, "last year"):
		return "1y"
	case strings.Contains(lowered, "5 year"), strings.Contains(lowered, "five year"):
		return "5y"
	case strings.Contains(lowered, "all time"), strings.Contains(lowered, "inception"):
		return "max"
	}
	return fallback
}

var taxYearRe = regexp.MustCompile(`\b(20\d{2})\b`)

func extractTaxYear(query string, fallback int) int {
	m := taxYearRe.FindStringSubmatch(query)
	if m == nil {
		return fallback
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return fallback
	}
	return year
}

func extractIncomeBracket(query, fallback string) string {
	lowered := strings.ToLower(query)
	switch {
	case strings.Contains(lowered, "low"):
		return "low"
	case strings.Contains(lowered, "high"):
		return "high"
	case strings.Contains(lowered, "middle"), strings.Contains(lowered, "mid"):
		return "middle"
	}
	return fallback
}

func extractTargetProfile(query, fallback string) string {
	lowered := strings.ToLower(query)
	switch {
	case strings.Contains(lowered, "conservative"):
		return "conservative"
	case strings.Contains(lowered, "aggressive"):
		return "aggressive"
	case strings.Contains(lowered, "balanced"):
		return "balanced"
	}
	return fallback
}

func extractCheckType(query, fallback string) string {
	lowered := strings.ToLower(query)
	switch {
	case strings.Contains(lowered, "wash sale"):
		return "wash_sale"
	case strings.Contains(lowered, "pattern day trad"),
		strings.Contains(lowered, "day trade"),
		strings.Contains(lowered, "day trading"):
		return "pattern_day_trading"
	case strings.Contains(lowered, "concentration"), strings.Contains(lowered, "concentrated"):
		return "concentration"
	}
	return fallback
}

var tickerRe = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// tickerStopWords filters common English words that look like ticker symbols.
var tickerStopWords = map[string]bool{
	"I": true, "A": true, "AM": true, "AN": true, "AS": true, "AT": true,
	"BE": true, "BY": true, "DO": true, "GO": true, "HE": true, "IF": true,
	"IN": true, "IS": true, "IT": true, "ME": true, "MY": true, "NO": true,
	"OF": true, "OK": true, "ON": true, "OR": true, "SO": true, "TO": true,
	"UP": true, "US": true, "WE": true, "THE": true, "AND": true, "FOR": true,
	"ARE": true, "BUT": true, "NOT": true, "YOU": true, "ALL": true,
	"ANY": true, "CAN": true, "HAS": true, "HER": true, "WAS": true,
	"ONE": true, "OUR": true, "OUT": true, "HOW": true, "WHAT": true,
	"WITH": true, "SHOW": true, "GET": true, "MUCH": true,
}

func extractSymbols(query string) []string {
	matches := tickerRe.FindAllString(query, -1)
	var symbols []string
	for _, m := range matches {
		if !tickerStopWords[m] {
			symbols = append(symbols, m)
		}
	}
	return symbols
}

// currentYear is swappable in tests.
var currentYear = func() int { return time.Now().Year() }

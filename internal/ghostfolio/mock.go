package ghostfolio

import "context"

// MockClient is an in-memory stand-in for Client used by tests and the
// one-shot CLI mode. Responses are deep-copied on every call so callers can
// mutate returned payloads freely.
type MockClient struct {
	Details      map[string]any
	OrdersByCall map[string]any // keyed by date range, "" for unfiltered
	Err          error          // when set, every call fails with this error
}

// NewMockClient returns a mock preloaded with a small deterministic portfolio:
// two equity holdings plus a bond position, and a handful of buy/sell orders.
func NewMockClient() *MockClient {
	orders := map[string]any{
		"count": 4,
		"activities": []any{
			map[string]any{
				"type": "BUY", "date": "2024-02-01T00:00:00.000Z",
				"quantity": float64(10), "unitPrice": float64(100), "value": float64(1000),
				"SymbolProfile": map[string]any{"symbol": "AAPL"},
			},
			map[string]any{
				"type": "BUY", "date": "2024-03-01T00:00:00.000Z",
				"quantity": float64(5), "unitPrice": float64(400), "value": float64(2000),
				"SymbolProfile": map[string]any{"symbol": "SPY"},
			},
			map[string]any{
				"type": "SELL", "date": "2025-04-01T00:00:00.000Z",
				"quantity": float64(4), "unitPrice": float64(150), "value": float64(600),
				"SymbolProfile": map[string]any{"symbol": "AAPL"},
			},
			map[string]any{
				"type": "DIVIDEND", "date": "2025-05-01T00:00:00.000Z",
				"quantity": float64(1), "unitPrice": float64(12), "value": float64(12),
				"SymbolProfile": map[string]any{"symbol": "SPY"},
			},
		},
	}
	details := map[string]any{
		"summary": map[string]any{
			"currentNetWorth":                              float64(10500),
			"currentValueInBaseCurrency":                   float64(10500),
			"netPerformance":                               float64(500),
			"netPerformancePercentage":                     float64(5.0),
			"netPerformancePercentageWithCurrencyEffect":   float64(5.0),
			"netPerformanceWithCurrencyEffect":             float64(500),
			"totalInvestment":                              float64(10000),
			"totalInvestmentValueWithCurrencyEffect":       float64(10000),
		},
		"holdings": map[string]any{
			"AAPL": map[string]any{
				"assetClass": "EQUITY", "allocationInPercentage": 0.4,
				"marketPrice": float64(150), "netPerformance": float64(300),
				"netPerformancePercentage": 0.25, "currency": "USD",
				"value": float64(4200), "quantity": float64(28), "name": "Apple Inc.",
			},
			"SPY": map[string]any{
				"assetClass": "EQUITY", "allocationInPercentage": 0.38,
				"marketPrice": float64(420), "netPerformance": float64(150),
				"netPerformancePercentage": 0.04, "currency": "USD",
				"value": float64(3990), "quantity": float64(9.5), "name": "SPDR S&P 500",
			},
			"BND": map[string]any{
				"assetClass": "FIXED_INCOME", "allocationInPercentage": 0.22,
				"marketPrice": float64(77), "netPerformance": float64(50),
				"netPerformancePercentage": 0.02, "currency": "USD",
				"value": float64(2310), "quantity": float64(30), "name": "Vanguard Total Bond",
			},
		},
	}
	return &MockClient{
		Details:      details,
		OrdersByCall: map[string]any{"": orders},
	}
}

func (m *MockClient) PortfolioDetails(ctx context.Context) (map[string]any, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return deepCopyMap(m.Details), nil
}

func (m *MockClient) Orders(ctx context.Context, dateRange string) (map[string]any, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if dateRange != "" && !ValidDateRanges[dateRange] {
		return nil, &ClientError{Code: CodeInvalidTimePeriod, Detail: "unsupported range: " + dateRange}
	}
	if payload, ok := m.OrdersByCall[dateRange]; ok {
		return deepCopyMap(payload.(map[string]any)), nil
	}
	if payload, ok := m.OrdersByCall[""]; ok {
		return deepCopyMap(payload.(map[string]any)), nil
	}
	return map[string]any{"activities": []any{}}, nil
}

func deepCopyMap(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return deepCopyMap(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return x
	}
}

package capability

import "context"

// Client is the slice of the portfolio data source that capabilities consume.
// *ghostfolio.Client and *ghostfolio.MockClient both satisfy it.
type Client interface {
	// PortfolioDetails returns holdings and the account summary.
	PortfolioDetails(ctx context.Context) (map[string]any, error)
	// Orders returns activities, optionally filtered to a date range
	// ("" means all activities).
	Orders(ctx context.Context, dateRange string) (map[string]any, error)
}

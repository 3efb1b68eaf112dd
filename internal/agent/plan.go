package agent

import "strings"

// planPhrases maps trigger phrases to a fixed sequence of routes. Matching
// is checked in this order; the first hit wins.
var planPhrases = []struct {
	phrases []string
	routes  []Route
}{
	{
		phrases: []string{"health check", "full analysis"},
		routes:  []Route{RoutePortfolio, RouteAllocation, RouteCompliance},
	},
	{
		phrases: []string{"complete review"},
		routes:  []Route{RoutePortfolio, RouteTransactions, RouteTax},
	},
	{
		phrases: []string{"portfolio overview"},
		routes:  []Route{RoutePortfolio, RouteAllocation},
	},
	{
		phrases: []string{"tax and compliance"},
		routes:  []Route{RouteTax, RouteCompliance},
	},
}

// detectPlan recognizes composite requests that expand into a multi-step
// capability plan. Returns nil when the query is single-intent.
func detectPlan(registry capabilityLookup, query string) []PlanStep {
	lowered := strings.ToLower(query)
	for _, entry := range planPhrases {
		for _, phrase := range entry.phrases {
			if !strings.Contains(lowered, phrase) {
				continue
			}
			steps := make([]PlanStep, 0, len(entry.routes))
			for _, route := range entry.routes {
				def, ok := registry.ForRoute(string(route))
				if !ok {
					continue
				}
				steps = append(steps, PlanStep{
					Route:      route,
					Capability: def.Name,
					Arguments:  def.Sanitize(query, nil),
				})
			}
			if len(steps) > 0 {
				return steps
			}
		}
	}
	return nil
}

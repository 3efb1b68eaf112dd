package agent

import (
	"context"
	"strings"
)

// Decision is the structured output of a classifier: the chosen route plus
// an optional capability override and raw arguments.
type Decision struct {
	Route      string         `json:"route"`
	Capability string         `json:"capability,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Classifier maps free text plus conversation context to a Decision. A
// language-model backed implementation can be injected; the keyword
// classifier below is the deterministic fallback.
type Classifier func(ctx context.Context, query string, messages []Message) (Decision, error)

// Narrator turns a capability payload into prose for the final answer.
// When nil or failing, a templated summary is used instead.
type Narrator func(ctx context.Context, query, capabilityName string, data map[string]any) (string, error)

var routeIntents = map[Route][]string{
	RoutePortfolio: {
		"portfolio", "performance", "return", "gain", "loss", "how am i doing",
	},
	RouteTransactions: {
		"transaction", "activity", "activities", "bought", "sold", "dividend",
		"fee", "interest", "order",
	},
	RouteTax: {
		"tax", "capital gains", "liability", "short term", "long term",
	},
	RouteAllocation: {
		"allocation", "diversification", "diversified", "rebalancing",
		"re-balance", "overweight", "underweight",
	},
	RouteCompliance: {
		"compliance", "wash sale", "pattern day trad", "regulation",
		"violation", "day trade", "day trading",
	},
	RouteMarket: {
		"market data", "current price", "stock price", "market value",
		"price of", "prices", "quote",
	},
}

var promptInjectionMarkers = []string{
	"ignore previous instructions",
	"ignore your instructions",
	"system prompt",
	"developer message",
	"reveal prompt",
	"show hidden instructions",
}

var followUpMarkers = []string{
	"based on that",
	"based on this",
	"from that",
	"following up",
	"given that",
	"what should i do next",
}

func containsInjectionMarker(query string) bool {
	lowered := strings.ToLower(query)
	for _, marker := range promptInjectionMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// routeFromKeywords routes only when exactly one intent matches; anything
// ambiguous, empty, or carrying injection markers falls to clarify.
func routeFromKeywords(query string) Route {
	lowered := strings.ToLower(query)
	if lowered == "" {
		return RouteClarify
	}
	if containsInjectionMarker(lowered) {
		return RouteClarify
	}

	var matched []Route
	for route, keywords := range routeIntents {
		for _, keyword := range keywords {
			if strings.Contains(lowered, keyword) {
				matched = append(matched, route)
				break
			}
		}
	}
	if len(matched) == 1 {
		return matched[0]
	}
	return RouteClarify
}

func isFollowUpQuery(query string) bool {
	lowered := strings.ToLower(query)
	for _, marker := range followUpMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// KeywordClassifier is the deterministic classifier used when no external
// one is injected, or when the injected one fails.
func KeywordClassifier(registry capabilityLookup) Classifier {
	return func(ctx context.Context, query string, messages []Message) (Decision, error) {
		route := routeFromKeywords(query)
		if route == RouteClarify {
			return Decision{Route: string(RouteClarify), Reason: "ambiguous_or_out_of_scope"}, nil
		}
		def, ok := registry.ForRoute(string(route))
		if !ok {
			return Decision{Route: string(RouteClarify), Reason: "no_capability_for_route"}, nil
		}
		return Decision{
			Route:      string(route),
			Capability: def.Name,
			Arguments:  def.Defaults(query),
			Reason:     "keyword_match",
		}, nil
	}
}

func trimText(s string) string {
	return strings.TrimSpace(s)
}

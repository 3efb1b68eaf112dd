package agent

import "github.com/danshapiro/finsight/internal/capability"

// capabilityLookup is the registry surface the pipeline needs.
type capabilityLookup interface {
	Lookup(name string) (capability.Definition, bool)
	ForRoute(route string) (capability.Definition, bool)
	Descriptions() []string
}

// normalizeDecision clamps a raw classifier decision to a registered route
// and capability, and sanitizes arguments against the query text. Unknown
// routes collapse to clarify.
func normalizeDecision(registry capabilityLookup, query string, decision Decision) Decision {
	route := Route(decision.Route)
	if !validRoutes[route] {
		route = RouteClarify
	}
	if route == RouteClarify {
		return Decision{Route: string(RouteClarify)}
	}

	def, ok := registry.ForRoute(string(route))
	if !ok {
		return Decision{Route: string(RouteClarify)}
	}
	if decision.Capability != "" {
		if override, found := registry.Lookup(decision.Capability); found {
			def = override
		}
	}
	return Decision{
		Route:      string(route),
		Capability: def.Name,
		Arguments:  def.Sanitize(query, decision.Arguments),
	}
}

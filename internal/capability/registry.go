package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Definition binds a route to the callable that serves it.
type Definition struct {
	Name        string
	Route       string
	Description string

	// Parameters is a JSON-schema object describing the accepted arguments.
	Parameters map[string]any
	Schema     *jsonschema.Schema

	// Defaults derives arguments from the raw query text alone.
	Defaults func(query string) map[string]any

	// Sanitize merges raw arguments over defaults and clamps them to the
	// valid set for this capability.
	Sanitize func(query string, raw map[string]any) map[string]any

	Run func(ctx context.Context, client Client, args map[string]any) Result
}

type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: map[string]Definition{}}
}

func (r *Registry) Register(d Definition) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("capability missing name")
	}
	if d.Run == nil {
		return fmt.Errorf("capability %s missing runner", d.Name)
	}
	if d.Schema == nil {
		s, err := compileSchema(d.Parameters)
		if err != nil {
			return fmt.Errorf("capability %s schema: %w", d.Name, err)
		}
		d.Schema = s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defs == nil {
		r.defs = map[string]Definition{}
	}
	r.defs[d.Name] = d
	return nil
}

func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// ForRoute returns the capability registered for a route.
func (r *Registry) ForRoute(route string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.defs {
		if d.Route == route {
			return d, true
		}
	}
	return Definition{}, false
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for name := range r.defs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Descriptions returns name/description pairs in name order.
func (r *Registry) Descriptions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, fmt.Sprintf("%s: %s", name, r.defs[name].Description))
	}
	return out
}

// ValidateArgs checks args against the capability's schema. The schema
// validator works on JSON-decoded values, so arguments are round-tripped
// through encoding/json first.
func (d Definition) ValidateArgs(args map[string]any) error {
	if d.Schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}
	return d.Schema.Validate(decoded)
}

func compileSchema(params map[string]any) (*jsonschema.Schema, error) {
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

// stringArg returns args[key] when it is a non-empty string.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// intArg accepts the whole numeric family: arguments arrive as float64
// from JSON decoding but as sized or unsigned integers after a msgpack
// snapshot round trip.
func intArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint:
		return int(x), true
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return int(x), true
	case uint64:
		return int(x), true
	case float32:
		return int(x), true
	case float64:
		return int(x), true
	}
	return 0, false
}

func stringSliceArg(args map[string]any, key string) ([]string, bool) {
	v, ok := args[key]
	if !ok {
		return nil, false
	}
	switch x := v.(type) {
	case []string:
		return x, len(x) > 0
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, len(out) > 0
	}
	return nil, false
}

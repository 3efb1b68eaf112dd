// Package capability implements the financial-analysis capabilities and the
// registry that routes to them. Each capability is an opaque function with a
// declared argument schema; expected failures are returned as tagged Results,
// never as errors or panics.
package capability

// Result is the uniform outcome of one capability invocation.
type Result struct {
	Success  bool           `json:"success"`
	Data     map[string]any `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// OK builds a successful result carrying data.
func OK(data map[string]any) Result {
	return Result{Success: true, Data: data, Metadata: map[string]any{}}
}

// Fail builds a failed result tagged with an error code.
func Fail(code string) Result {
	return Result{Success: false, Error: code, Metadata: map[string]any{}}
}

// With attaches one metadata entry and returns the result for chaining.
func (r Result) With(key string, value any) Result {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
	return r
}

package capability

import "github.com/danshapiro/finsight/internal/ghostfolio"

// failFromClient turns a client error into a Result, preserving the
// structured error code and HTTP status when present.
func failFromClient(err error, meta map[string]any) Result {
	code := ghostfolio.ErrorCode(err)
	if code == "" {
		code = "API_ERROR"
	}
	r := Fail(code)
	if status := ghostfolio.ErrorStatus(err); status != 0 {
		r = r.With("status", status)
	}
	for k, v := range meta {
		r = r.With(k, v)
	}
	return r
}

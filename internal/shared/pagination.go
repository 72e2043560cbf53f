package shared

import (
	"net/http"
	"strconv"
)

// Window describes a limit/offset slice of a listing.
type Window struct {
	Limit  int
	Offset int
}

// NewWindow clamps the requested limit into (0, max] using def when unset.
func NewWindow(limit, offset, def, max int) Window {
	if def <= 0 {
		def = 20
	}
	if max < def {
		max = def
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return Window{Limit: limit, Offset: offset}
}

// WindowFromRequest reads `limit` and `offset` query parameters.
func WindowFromRequest(r *http.Request, def, max int) Window {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return NewWindow(limit, offset, def, max)
}

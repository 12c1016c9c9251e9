package httputil

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Param returns a request parameter from the merged query/form view,
// falling back to def when absent. For POST requests the form body takes
// precedence over the query string; the caller must have parsed the form
// (ParseMultipartForm for uploads) beforehand.
func Param(r *http.Request, key, def string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return def
}

// ParamInt parses an integer parameter, falling back to def when absent.
func ParamInt(r *http.Request, key string, def int) (int, error) {
	s := r.FormValue(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %s", key, s)
	}
	return v, nil
}

// ClampInt bounds v to at most max. A max of zero means unbounded.
func ClampInt(v, max int) int {
	if max > 0 && v > max {
		return max
	}
	return v
}

// PathVar extracts a named path variable from a mux route.
func PathVar(r *http.Request, key string) (string, error) {
	v := mux.Vars(r)[key]
	if v == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return v, nil
}

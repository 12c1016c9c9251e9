package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/pvs/pkg/backend"
	"github.com/platinummonkey/pvs/pkg/httputil"
)

// listingWidth is the wrap column of the extension listing.
const listingWidth = 80

// listExtensions serves GET /: the supported input extensions rendered as a
// code literal clients can paste into their configuration. Grouped per
// backend in registration order.
func (s *Server) listExtensions(w http.ResponseWriter, r *http.Request) {
	listing, err := renderExtensions(s.registry, httputil.Param(r, "format", "py"))
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(listing))
}

func renderExtensions(reg *backend.Registry, format string) (string, error) {
	var header, footer, comment string
	switch format {
	case "py":
		header, footer, comment = "extensions = [", "]", "# "
	case "js":
		header, footer, comment = "var extensions = [", "];", "// "
	default:
		return "", fmt.Errorf("unknown listing format: %s", format)
	}

	const indent = "    "
	lines := []string{header}
	for _, b := range reg.Backends() {
		lines = append(lines, indent+comment+title(b.Name())+" backend extensions")
		line := indent
		for _, ext := range b.Extensions() {
			entry := "'" + ext + "', "
			if line != indent && len(line)+len(entry) > listingWidth {
				lines = append(lines, strings.TrimRight(line, " "))
				line = indent
			}
			line += entry
		}
		if line != indent {
			lines = append(lines, strings.TrimRight(line, " "))
		}
	}
	lines = append(lines, footer)

	return strings.Join(lines, "\r\n") + "\r\n", nil
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

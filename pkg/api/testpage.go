package api

import (
	_ "embed"
	"net/http"
)

//go:embed html/test.html
var testPageHTML []byte

// testPage serves the manual upload form at GET /test/.
func (s *Server) testPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(testPageHTML)
}

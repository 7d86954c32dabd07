package http

import (
	_ "embed"
	"net/http"
	"strings"
)

//go:embed index.html
var indexHTML string

// IndexHandler serves the landing page. Snippet, when set, is inserted
// before the closing body tag.
type IndexHandler struct {
	Snippet string
}

func (h *IndexHandler) render() string {
	if h.Snippet == "" {
		return indexHTML
	}
	return strings.Replace(indexHTML, "</body>", h.Snippet+"\n</body>", 1)
}

// Index handles GET /.
func (h *IndexHandler) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(h.render()))
}

// Redirect sends unknown paths to the landing page.
func (h *IndexHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

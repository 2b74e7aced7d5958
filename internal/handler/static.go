package handler

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// Frontend handles GET /* by serving the built single-page app. Unknown
// paths fall back to index.html so client-side routes resolve.
func (h *Handler) Frontend(w http.ResponseWriter, r *http.Request) {
	dir := h.opts.StaticDir
	if dir != "" {
		clean := path.Clean("/" + r.URL.Path)
		if clean != "/" {
			file := filepath.Join(dir, filepath.FromSlash(clean))
			if info, err := os.Stat(file); err == nil && !info.IsDir() {
				http.ServeFile(w, r, file)
				return
			}
		}

		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]any{
		"error":         "Frontend not built",
		"message":       "Please build the frontend first using 'npm run build'",
		"api_available": true,
	})
}

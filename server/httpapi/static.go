package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
)

// registerStatic mounts the web frontend when a static directory is
// configured. The top-level asset routes exist because the shipped pages
// request their CSS and JS relative to the site root.
func (s *Server) registerStatic(router *mux.Router) {
	if s.staticDir == "" {
		return
	}

	page := func(name string) http.HandlerFunc {
		path := filepath.Join(s.staticDir, name)
		return func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, path)
		}
	}

	router.HandleFunc("/", page("index.html")).Methods("GET")
	router.HandleFunc("/admin", page("admin.html")).Methods("GET")
	for _, asset := range []string{"style.css", "script.js", "admin.js"} {
		router.HandleFunc("/"+asset, page(asset)).Methods("GET")
	}

	router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir)))).Methods("GET")
}

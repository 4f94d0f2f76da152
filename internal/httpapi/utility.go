package httpapi

import "net/http"

func (s *Server) handleEncodingModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.embed.ListModels()})
}

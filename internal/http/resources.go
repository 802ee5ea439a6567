package http

import "net/http"

func (s *Server) addResourcesRoute() {
	s.r.Get("/api/resources", s.resources)
}

func (s *Server) resources(w http.ResponseWriter, r *http.Request) {
	includeHistory := r.URL.Query().Get("history") == "1"
	respondData(w, s.monitor.Snapshot(includeHistory))
}

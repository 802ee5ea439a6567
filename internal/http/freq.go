package http

import (
	"fmt"
	"net/http"
)

func (s *Server) addFreqRoutes() {
	s.r.Get("/api/cpu/freq/status", s.freqStatus)
	s.r.Post("/api/cpu/freq/set", s.freqSet)
	s.r.Post("/api/cpu/freq/restore", s.freqRestore)
}

func (s *Server) freqStatus(w http.ResponseWriter, r *http.Request) {
	respondData(w, s.coordinator.FrequencyStatus())
}

type freqSetRequest struct {
	Frequency     int64 `json:"frequency"`
	Cores         []int `json:"cores"`
	AutoRestoreMs int64 `json:"autoRestoreMs"`
}

func (s *Server) freqSet(w http.ResponseWriter, r *http.Request) {
	var req freqSetRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Frequency <= 0 {
		respondError(w, http.StatusBadRequest, fmt.Errorf("frequency must be a positive kHz value"))
		return
	}
	if err := s.coordinator.SetFrequency(req.Frequency, req.Cores, req.AutoRestoreMs); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondMessage(w, fmt.Sprintf("max frequency limited to %d kHz", req.Frequency))
}

func (s *Server) freqRestore(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.RestoreFrequency(); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondMessage(w, "original frequencies restored")
}

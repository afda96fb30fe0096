package api

import (
	"net/http"

	"orderdesk/internal"
)

// DefaultSettings apply until a value is saved.
var DefaultSettings = internal.Settings{
	Model:  "glm-4-flash",
	APIKey: "test-api-key",
	APIURL: "https://api.example.com",
}

func (s *Server) getSettings(w http.ResponseWriter, _ *http.Request) {
	settings, err := s.db.GetSettings(DefaultSettings)
	if err != nil {
		s.internalError(w, "get settings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// updateSettings decodes over the current values, so omitted keys stay.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.db.GetSettings(DefaultSettings)
	if err != nil {
		s.internalError(w, "get settings failed", err)
		return
	}
	if !s.decodeJSON(w, r, &settings) {
		return
	}
	if err := s.db.SaveSettings(settings); err != nil {
		s.internalError(w, "save settings failed", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

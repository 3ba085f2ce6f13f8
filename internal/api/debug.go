package api

import (
	"net/http"
	"time"

	"fleetops/internal/buildinfo"
)

// DebugJSON reports build metadata, the effective paging bounds and the
// non-secret settings passed in Options.Info.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	pages := s.Svc.PageConfig()
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"paging": map[string]int{
			"defaultPage": pages.DefaultPage,
			"defaultSize": pages.DefaultSize,
			"maxPage":     pages.MaxPage,
			"maxSize":     pages.MaxSize,
		},
		"config": s.opts.Info,
	})
}

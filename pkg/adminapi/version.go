package adminapi

import (
	"net/http"
	"runtime"
)

// Build information, populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
	Branch  = "unknown"
)

func versionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, struct {
		Version  string `json:"version"`
		Commit   string `json:"commit"`
		Branch   string `json:"branch"`
		Runtime  string `json:"runtime"`
		Platform string `json:"platform"`
	}{
		Version:  Version,
		Commit:   Commit,
		Branch:   Branch,
		Runtime:  runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	})
}

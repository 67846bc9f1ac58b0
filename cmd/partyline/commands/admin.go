package commands

import (
	"encoding/json"
	"net/http"

	"github.com/sswguo/partyline/pkg/partyline"
)

// lockInfoResponse is the JSON body the admin /lockinfo endpoint returns.
type lockInfoResponse struct {
	Path string `json:"path"`
	Info string `json:"info"`
}

// newAdminHandler builds the HTTP handler the serve-demo command exposes for
// out-of-process diagnostics (the target of the lockinfo subcommand).
func newAdminHandler(mgr *partyline.Manager) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/lockinfo", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			http.Error(w, "missing path query parameter", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(lockInfoResponse{
			Path: path,
			Info: mgr.GetLockInfo(path),
		})
	})
	return mux
}

// Package web serves the live detection dashboard.
package web

import (
	"bytes"
	_ "embed"
	"net/http"
	"strconv"
)

//go:embed dashboard.html
var dashboardHTML []byte

// Dashboard returns a handler serving the embedded dashboard page, which
// subscribes to the websocket endpoint at wsPath
func Dashboard(wsPath string) http.HandlerFunc {
	page := bytes.ReplaceAll(dashboardHTML, []byte(`"/ws"`), []byte(strconv.Quote(wsPath)))

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	}
}

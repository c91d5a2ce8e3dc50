package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. The header timeout caps slow-header clients;
// request bodies (taxonomy uploads can be large) keep the default limits.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

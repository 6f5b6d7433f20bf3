package server

import (
	"net"
	"net/http"
	"time"
)

// NewServer creates and configures an HTTP server. The write timeout leaves
// room for an approve call that waits on a bundler round trip.
func NewServer(handler http.Handler, address, port string) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(address, port),
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

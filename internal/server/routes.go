// Package server wires HTTP handlers into a ServeMux for the ConvoHub
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes. The account endpoints are mounted only when svc is not nil.
func SetupRoutes(hub *Hub, svc AccountService) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.Handle("/api/health", allowCORS(http.HandlerFunc(APIHealthHandler)))
	if svc != nil {
		mux.Handle("/api/register", allowCORS(RegisterHandler(svc)))
		mux.Handle("/api/login", allowCORS(LoginHandler(svc)))
	}
	return mux
}

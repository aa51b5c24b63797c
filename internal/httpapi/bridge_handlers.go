package httpapi

import "net/http"

// registerBridgeRoutes mounts Component G's own handlers directly: each one
// already enforces its own HTTP method and encodes its own response, so
// httpapi only needs to give it a path.
func (s *server) registerBridgeRoutes(mux *http.ServeMux) {
	if s.bridge == nil {
		return
	}
	mux.HandleFunc("/bridge/connect", s.bridge.ConnectHandler())
	mux.HandleFunc("/bridge/relay", s.bridge.RelayHandler())
	mux.HandleFunc("/bridge/send", s.bridge.SendHandler())
	mux.HandleFunc("/bridge/agents", s.bridge.AgentsHandler())
	mux.HandleFunc("/bridge/status", s.bridge.StatusHandler())
}

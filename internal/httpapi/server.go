// Package httpapi is the HTTP transport for every QuackQuack Core component:
// thin handlers that decode a request, call into the owning component, and
// encode its result. It owns no business logic itself.
package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/apikeys"
	"github.com/JPaulGrayson/QuackQuack/internal/audit"
	"github.com/JPaulGrayson/QuackQuack/internal/blobstore"
	"github.com/JPaulGrayson/QuackQuack/internal/bridge"
	"github.com/JPaulGrayson/QuackQuack/internal/convo"
	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/recorder"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/webhook"
)

// server holds every component dependency a handler might need, mirroring
// the teacher's single-struct-of-collaborators shape.
type server struct {
	logger *log.Logger

	mailbox  mailbox.Store
	registry registry.Store
	blobs    blobstore.Store
	subs     *webhook.SubscriptionStore
	fanout   *webhook.Fanout
	audit    *audit.Logger
	convo    *convo.Registry
	recorder *recorder.Recorder
	keys     apikeys.Store
	bridge   *bridge.Hub

	webhookSecret string
	devBypass     bool
}

// NewServer wires every component's HTTP surface onto a single mux and
// returns a ready-to-run *http.Server, following the teacher's
// NewServer(logger, addr, ...deps) *http.Server shape.
func NewServer(
	logger *log.Logger,
	addr string,
	mailboxStore mailbox.Store,
	registryStore registry.Store,
	blobStore blobstore.Store,
	subs *webhook.SubscriptionStore,
	fanout *webhook.Fanout,
	auditLogger *audit.Logger,
	convoRegistry *convo.Registry,
	recorderSvc *recorder.Recorder,
	keyStore apikeys.Store,
	bridgeHub *bridge.Hub,
	webhookSecret string,
	devBypass bool,
) *http.Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &server{
		logger:        logger,
		mailbox:       mailboxStore,
		registry:      registryStore,
		blobs:         blobStore,
		subs:          subs,
		fanout:        fanout,
		audit:         auditLogger,
		convo:         convoRegistry,
		recorder:      recorderSvc,
		keys:          keyStore,
		bridge:        bridgeHub,
		webhookSecret: webhookSecret,
		devBypass:     devBypass,
	}

	mux := http.NewServeMux()
	s.registerMailboxRoutes(mux)
	s.registerFileRoutes(mux)
	s.registerWebhookRoutes(mux)
	s.registerAgentRoutes(mux)
	s.registerKeyRoutes(mux)
	s.registerRecorderRoutes(mux)
	s.registerBridgeRoutes(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type authedKey struct{}

// requirePermission wraps a handler with API key auth, short-circuiting to
// "always allowed" when devBypass is set (spec §6 "dev-bypass flag grants
// admin to every request").
func (s *server) requirePermission(perm types.APIKeyPermission, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.devBypass {
			next(w, r)
			return
		}
		token := apikeys.TokenFromRequest(r.Header.Get("Authorization"), r.URL.Query().Get("token"))
		if token == "" {
			http.Error(w, "missing API key", http.StatusUnauthorized)
			return
		}
		key, err := s.keys.VerifyToken(r.Context(), token)
		if err != nil {
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}
		if !apikeys.HasPermission(key, perm) {
			http.Error(w, "insufficient permission", http.StatusForbidden)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), authedKey{}, key)))
	}
}

func actorFromRequest(r *http.Request) string {
	if key, ok := r.Context().Value(authedKey{}).(types.APIKey); ok {
		return key.OwnerID
	}
	return "dev-bypass"
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON decodes r's body into dst, rejecting unknown fields and
// trailing content, matching the teacher's decode discipline.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errTrailingContent
	}
	return nil
}

var errTrailingContent = jsonTrailingContentError{}

type jsonTrailingContentError struct{}

func (jsonTrailingContentError) Error() string { return "invalid json: trailing content" }

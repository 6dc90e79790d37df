// Package httpapi provides the auxiliary HTTP control surface for the
// CodeOrb gateway: a liveness probe, an engine status endpoint, and a JSON
// command submission/poll endpoint. It sits alongside — not instead of —
// the three raw-TCP services in internal/tcpsvc; operators who want a
// scriptable JSON surface use this one.
package httpapi

import (
	"crypto/rsa"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a configured chi.Router for CodeOrb's HTTP control
// surface.
//
// Route layout:
//
//	GET  /healthz                – liveness probe (no authentication required)
//	GET  /api/v1/status          – engine/link/target status (JWT required if pubKey set)
//	POST /api/v1/command         – submit a command, returns its id (JWT required if pubKey set)
//	GET  /api/v1/command/{id}    – poll for a command's response (JWT required if pubKey set)
//
// pubKey is the RSA public key used to verify RS256 Bearer tokens on every
// /api/v1 route. Pass nil to disable JWT validation, matching how
// config.ServicesConfig.JWTPublicKeyPath left empty disables auth.
func NewRouter(srv *Server, pubKey *rsa.PublicKey) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTMiddleware(pubKey))
		}

		r.Get("/status", srv.handleStatus)
		r.Post("/command", srv.handleCommandSend)
		r.Get("/command/{id}", srv.handleCommandGet)
	})

	return r
}

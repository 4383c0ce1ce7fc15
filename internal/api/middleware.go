package api

import (
	"net/http"

	"github.com/Masterminds/semver/v3"
)

// ClientVersionHeader carries the calling client's semantic version.
const ClientVersionHeader = "X-Client-Version"

// ClientVersionMiddleware rejects clients whose X-Client-Version does not
// satisfy server.min_client_version. Requests without the header, and all
// requests when no constraint is configured, pass through.
func (s *Server) ClientVersionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(ClientVersionHeader)
		constraint := s.app.Config().Server.MinClientVersion
		if raw == "" || constraint == "" {
			next.ServeHTTP(w, r)
			return
		}

		c, err := semver.NewConstraint(constraint)
		if err != nil {
			// A broken constraint is a server misconfiguration, not the client's fault.
			next.ServeHTTP(w, r)
			return
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "Invalid "+ClientVersionHeader+" header")
			return
		}
		if !c.Check(v) {
			RespondWithError(w, http.StatusUpgradeRequired, "Client version "+v.String()+" is not supported, requires "+constraint)
			return
		}
		next.ServeHTTP(w, r)
	})
}

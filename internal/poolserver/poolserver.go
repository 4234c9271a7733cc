// Package poolserver is the reference peer HTTP endpoint a federation
// peer runs so other engine instances can push and pull alleles against
// it. It is deliberately a thin shell around internal/engine/federation:
// any peer speaking this push/pull/status contract can interoperate,
// this is just one implementation of it.
package poolserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/mux"

	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/federation"
	"github.com/selfgene/sg/internal/engine/pool"
)

// Config configures the peer server's own identity and shared auth secret.
type Config struct {
	Domain    string
	JWTSecret string
}

type peerKey struct{}

// Server is the reference peer endpoint, routed with gorilla/mux.
type Server struct {
	exchange *federation.Exchange
	domain   string
	secret   []byte
	router   *mux.Router
}

// New builds a Server that serves pushes/pulls against exchange.
func New(exchange *federation.Exchange, cfg Config) *Server {
	s := &Server{
		exchange: exchange,
		domain:   cfg.Domain,
		secret:   []byte(cfg.JWTSecret),
	}

	r := mux.NewRouter()
	pool := r.PathPrefix("/pool").Subrouter()
	pool.Use(s.requirePeerAuth)
	pool.HandleFunc("/push", s.handlePush).Methods(http.MethodPost)
	pool.HandleFunc("/pull", s.handlePull).Methods(http.MethodGet)
	pool.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the server's http.Handler, suitable for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requirePeerAuth validates the peer's HS256 bearer token against the
// pool's shared secret and stashes the peer's claimed identity in the
// request context for handlers to log against.
func (s *Server) requirePeerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) {
			s.rejectAuth(w, r, "missing bearer token")
			return
		}

		var claims pool.PeerClaims
		token, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, prefix), &claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, engerr.PoolAuth("", "unexpected signing method")
			}
			return s.secret, nil
		})
		if err != nil || !token.Valid {
			s.rejectAuth(w, r, "invalid bearer token")
			return
		}

		ctx := context.WithValue(r.Context(), peerKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rejectAuth(w http.ResponseWriter, r *http.Request, reason string) {
	err := engerr.PoolAuth(r.RemoteAddr, reason)
	writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"code": err.Code, "message": err.Message})
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Locus   string                      `json:"locus"`
		Alleles []federation.ExportedAllele `json:"alleles"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	peerName, _ := r.Context().Value(peerKey{}).(string)

	imported := 0
	for _, allele := range body.Alleles {
		if _, err := s.exchange.Import(peerName, allele); err != nil {
			writeJSON(w, engerr.HTTPStatus(err), map[string]interface{}{"error": err.Error()})
			return
		}
		imported++
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"imported": imported})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request) {
	locus := r.URL.Query().Get("locus")
	if locus == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "locus query parameter is required"})
		return
	}

	alleles, err := s.exchange.Export(locus)
	if err != nil {
		writeJSON(w, engerr.HTTPStatus(err), map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alleles": alleles})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"domain": s.domain})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

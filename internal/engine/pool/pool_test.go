package pool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/selfgene/sg/internal/engine/federation"
	"github.com/selfgene/sg/internal/resilience"
)

func TestLoadPeersMissingFileReturnsEmpty(t *testing.T) {
	peers, err := LoadPeers(filepath.Join(t.TempDir(), "peers.json"))
	require.NoError(t, err)
	require.Empty(t, peers)
}

func TestLoadPeersParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"east","url":"https://east.example","domain":"network"}]`), 0o644))

	peers, err := LoadPeers(path)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "east", peers[0].Name)
}

func TestMembershipStoreRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool_memberships.json")
	store := NewMembershipStore(path)
	now := time.Now().UTC().Truncate(time.Second)
	store.RecordPush("east", "bridge_create", now)
	store.RecordPull("east", now)
	require.NoError(t, store.Save())

	reloaded := NewMembershipStore(path)
	require.NoError(t, reloaded.Load())

	m, ok := reloaded.Get("east")
	require.True(t, ok)
	require.Equal(t, []string{"bridge_create"}, m.PushedLoci)
	require.True(t, m.LastPulled.Equal(now))
}

func newTestServer(t *testing.T, secret string, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if len(auth) < 8 || auth[:7] != "Bearer " {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		token, err := jwt.Parse(auth[7:], func(*jwt.Token) (interface{}, error) { return []byte(secret), nil })
		if err != nil || !token.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
}

func TestClientPushSucceeds(t *testing.T) {
	var gotLocus string
	srv := newTestServer(t, "shared-secret", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Locus   string                        `json:"locus"`
			Alleles []federation.ExportedAllele `json:"alleles"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotLocus = body.Locus
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	client := NewClient(ClientConfig{SelfName: "west", SelfDomain: "network", JWTSecret: "shared-secret", RequestTimeout: time.Second})
	err := client.Push(context.Background(), Peer{Name: "east", URL: srv.URL}, "bridge_create", []federation.ExportedAllele{{SHA256: "abc"}})
	require.NoError(t, err)
	require.Equal(t, "bridge_create", gotLocus)
}

func TestClientPullReturnsAlleles(t *testing.T) {
	srv := newTestServer(t, "shared-secret", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"alleles":[{"sha256":"abc","locus":"bridge_create","fitness":0.8}]}`))
	})
	defer srv.Close()

	client := NewClient(ClientConfig{SelfName: "west", SelfDomain: "network", JWTSecret: "shared-secret", RequestTimeout: time.Second})
	alleles, err := client.Pull(context.Background(), Peer{Name: "east", URL: srv.URL}, "bridge_create")
	require.NoError(t, err)
	require.Len(t, alleles, 1)
	require.Equal(t, "abc", alleles[0].SHA256)
}

func TestClientRejectsWrongSecret(t *testing.T) {
	srv := newTestServer(t, "real-secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	client := NewClient(ClientConfig{SelfName: "west", JWTSecret: "wrong-secret", RequestTimeout: time.Second})
	err := client.Push(context.Background(), Peer{Name: "east", URL: srv.URL}, "bridge_create", nil)
	require.Error(t, err)
}

func TestClientBreakerIsolatesFailingPeer(t *testing.T) {
	down := newTestServer(t, "shared-secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer down.Close()
	up := newTestServer(t, "shared-secret", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer up.Close()

	client := NewClient(ClientConfig{SelfName: "west", JWTSecret: "shared-secret", RequestTimeout: time.Second})

	for i := 0; i < 5; i++ {
		err := client.Push(context.Background(), Peer{Name: "flaky", URL: down.URL}, "bridge_create", nil)
		require.Error(t, err)
	}

	// The flaky peer's breaker is now open; a call to a healthy peer must
	// still succeed since breakers are tracked per peer name.
	err := client.Push(context.Background(), Peer{Name: "healthy", URL: up.URL}, "bridge_create", nil)
	require.NoError(t, err)

	err = client.Push(context.Background(), Peer{Name: "flaky", URL: down.URL}, "bridge_create", nil)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestRankByZScoreOrdersDescending(t *testing.T) {
	candidates := []Candidate{
		{Peer: "east", Allele: federation.ExportedAllele{SHA256: "low", Fitness: 0.2}},
		{Peer: "west", Allele: federation.ExportedAllele{SHA256: "high", Fitness: 0.9}},
		{Peer: "east", Allele: federation.ExportedAllele{SHA256: "mid", Fitness: 0.5}},
	}
	ranked := RankByZScore(candidates)
	require.Len(t, ranked, 3)
	require.Equal(t, "high", ranked[0].Allele.SHA256)
	require.Equal(t, "low", ranked[2].Allele.SHA256)
}

func TestRankByZScoreZeroVarianceScoresZero(t *testing.T) {
	candidates := []Candidate{
		{Peer: "east", Allele: federation.ExportedAllele{SHA256: "a", Fitness: 0.5}},
		{Peer: "west", Allele: federation.ExportedAllele{SHA256: "b", Fitness: 0.5}},
	}
	ranked := RankByZScore(candidates)
	for _, r := range ranked {
		require.Equal(t, 0.0, r.ZScore)
	}
}

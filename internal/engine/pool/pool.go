// Package pool manages this engine instance's membership in a federation
// of peers: who they are, an authenticated rate-limited HTTP client for
// push/pull/status calls against them, and a z-score ranking used to pick
// which cross-domain alleles are worth pulling.
package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/selfgene/sg/internal/engerr"
	"github.com/selfgene/sg/internal/engine/federation"
	"github.com/selfgene/sg/internal/resilience"
)

// Peer describes one federation peer this engine instance can push to or
// pull from.
type Peer struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// LoadPeers reads the peers.json file listing known federation peers. A
// missing file is not an error: a fresh project has no peers yet.
func LoadPeers(path string) ([]Peer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engerr.Internal("failed to read peers file", err)
	}
	var peers []Peer
	if err := json.Unmarshal(data, &peers); err != nil {
		return nil, engerr.Internal("failed to parse peers file", err)
	}
	return peers, nil
}

// Membership records the last exchange with one peer.
type Membership struct {
	Peer       string    `json:"peer"`
	LastPushed time.Time `json:"last_pushed,omitempty"`
	LastPulled time.Time `json:"last_pulled,omitempty"`
	PushedLoci []string  `json:"pushed_loci,omitempty"`
}

// MembershipStore persists exchange history at .sg/pool_memberships.json.
type MembershipStore struct {
	path string

	mu      sync.Mutex
	members map[string]*Membership
}

// NewMembershipStore constructs a store backed by path.
func NewMembershipStore(path string) *MembershipStore {
	return &MembershipStore{path: path, members: make(map[string]*Membership)}
}

// Load reads persisted membership state, if any.
func (s *MembershipStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return engerr.Internal("failed to read pool memberships", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.members)
}

// Save persists membership state via a temp-file-then-rename write.
func (s *MembershipStore) Save() error {
	s.mu.Lock()
	payload, err := json.MarshalIndent(s.members, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return engerr.Internal("failed to marshal pool memberships", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return engerr.Internal("failed to create pool state directory", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return engerr.Internal("failed to write pool memberships", err)
	}
	return os.Rename(tmp, s.path)
}

// RecordPush notes a successful push of locus to peer.
func (s *MembershipStore) RecordPush(peer, locus string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.entryLocked(peer)
	m.LastPushed = at
	m.PushedLoci = appendUniqueString(m.PushedLoci, locus)
}

// RecordPull notes a successful pull from peer.
func (s *MembershipStore) RecordPull(peer string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryLocked(peer).LastPulled = at
}

// Get returns peer's membership record, if any.
func (s *MembershipStore) Get(peer string) (Membership, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[peer]
	if !ok {
		return Membership{}, false
	}
	return *m, true
}

func (s *MembershipStore) entryLocked(peer string) *Membership {
	m, ok := s.members[peer]
	if !ok {
		m = &Membership{Peer: peer}
		s.members[peer] = m
	}
	return m
}

func appendUniqueString(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// PeerClaims is the JWT payload a pool client presents to a peer on every
// push/pull/status call.
type PeerClaims struct {
	jwt.StandardClaims
	Domain string `json:"domain"`
}

// Client is an authenticated, rate-limited HTTP client for talking to
// federation peers over the reference pool server's push/pull/status
// endpoints.
type Client struct {
	http       *http.Client
	limiter    *rate.Limiter
	secret     []byte
	selfName   string
	selfDomain string
	tokenTTL   time.Duration

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// ClientConfig configures a pool Client.
type ClientConfig struct {
	SelfName       string
	SelfDomain     string
	JWTSecret      string
	RateLimitRPS   float64
	RequestBurst   int
	RequestTimeout time.Duration
}

// NewClient constructs a Client from cfg. A non-positive RateLimitRPS
// defaults to 5 requests per second and a non-positive RequestBurst to 10.
func NewClient(cfg ClientConfig) *Client {
	rps := cfg.RateLimitRPS
	burst := cfg.RequestBurst
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		secret:     []byte(cfg.JWTSecret),
		selfName:   cfg.SelfName,
		selfDomain: cfg.SelfDomain,
		tokenTTL:   time.Minute,
		breakers:   make(map[string]*resilience.CircuitBreaker),
	}
}

// breakerFor returns peer's circuit breaker, creating one on first use. A
// peer that keeps failing trips its own breaker without affecting calls
// to any other peer.
func (c *Client) breakerFor(peerName string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[peerName]
	if !ok {
		cfg := resilience.DefaultConfig()
		cfg.Name = peerName
		cb = resilience.New(cfg)
		c.breakers[peerName] = cb
	}
	return cb
}

func (c *Client) token() (string, error) {
	now := time.Now()
	claims := PeerClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    c.selfName,
			Subject:   c.selfName,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(c.tokenTTL).Unix(),
		},
		Domain: c.selfDomain,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Push sends locus's exportable alleles to peer.
func (c *Client) Push(ctx context.Context, peer Peer, locus string, alleles []federation.ExportedAllele) error {
	_, err := c.doJSON(ctx, http.MethodPost, peer, "/pool/push", map[string]interface{}{
		"locus":   locus,
		"alleles": alleles,
	}, nil)
	return err
}

// Pull fetches locus's exportable alleles from peer.
func (c *Client) Pull(ctx context.Context, peer Peer, locus string) ([]federation.ExportedAllele, error) {
	var resp struct {
		Alleles []federation.ExportedAllele `json:"alleles"`
	}
	if _, err := c.doJSON(ctx, http.MethodGet, peer, "/pool/pull?locus="+locus, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Alleles, nil
}

// PeerStatus is the subset of a peer's self-reported health this client
// cares about when deciding whether to pull from it.
type PeerStatus struct {
	Domain       string `json:"domain"`
	ActiveLoci   int    `json:"active_loci"`
	TotalAlleles int    `json:"total_alleles"`
}

// Status queries peer's current status.
func (c *Client) Status(ctx context.Context, peer Peer) (PeerStatus, error) {
	var status PeerStatus
	_, err := c.doJSON(ctx, http.MethodGet, peer, "/pool/status", nil, &status)
	return status, err
}

func (c *Client) doJSON(ctx context.Context, method string, peer Peer, path string, body interface{}, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, engerr.Internal("failed to marshal pool request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, peer.URL+path, reader)
	if err != nil {
		return 0, engerr.Internal("failed to build pool request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	tok, err := c.token()
	if err != nil {
		return 0, engerr.PoolAuth(peer.Name, "failed to sign outbound token")
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	var statusCode int
	cb := c.breakerFor(peer.Name)
	cbErr := cb.Execute(ctx, func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return engerr.Internal(fmt.Sprintf("pool request to %s failed", peer.Name), err)
		}
		defer resp.Body.Close()
		statusCode = resp.StatusCode

		if resp.StatusCode == http.StatusUnauthorized {
			return engerr.PoolAuth(peer.Name, "peer rejected bearer token")
		}
		if resp.StatusCode >= 300 {
			return engerr.Internal(fmt.Sprintf("pool request to %s returned %d", peer.Name, resp.StatusCode), nil)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return engerr.Internal("failed to decode pool response", err)
			}
		}
		return nil
	})
	return statusCode, cbErr
}

// Candidate is one peer-offered allele under consideration for a cross-domain pull.
type Candidate struct {
	Peer   string
	Allele federation.ExportedAllele
}

// ScoredAllele is one candidate allele annotated with its z-score against
// the set of candidates it was ranked among.
type ScoredAllele struct {
	Allele federation.ExportedAllele
	Peer   string
	ZScore float64
}

// RankByZScore standardizes each candidate's fitness against the mean and
// population standard deviation of the whole candidate set (across every
// peer domain it came from) and returns candidates sorted by descending
// z-score. Used by `pool auto` to decide which cross-domain alleles are
// worth pulling first. A zero-variance set (all fitness values equal)
// scores every candidate 0.
func RankByZScore(candidates []Candidate) []ScoredAllele {
	n := len(candidates)
	if n == 0 {
		return nil
	}

	var sum float64
	for _, c := range candidates {
		sum += c.Allele.Fitness
	}
	mean := sum / float64(n)

	var variance float64
	for _, c := range candidates {
		d := c.Allele.Fitness - mean
		variance += d * d
	}
	variance /= float64(n)
	stddev := math.Sqrt(variance)

	scored := make([]ScoredAllele, 0, n)
	for _, c := range candidates {
		z := 0.0
		if stddev > 0 {
			z = (c.Allele.Fitness - mean) / stddev
		}
		scored = append(scored, ScoredAllele{Allele: c.Allele, Peer: c.Peer, ZScore: z})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].ZScore > scored[j].ZScore })
	return scored
}

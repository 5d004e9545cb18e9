// Package tokencache implements the process-wide STS token cache described
// in spec §4.1: single-flight issuance per (carrier, variant) key, lifetime
// enforcement with a safety skew, and explicit invalidation on auth faults.
package tokencache

import (
	"context"
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
)

var log = logrus.WithFields(logrus.Fields{
	trace.Component: "bipro:tokencache",
})

// Skew is subtracted from a token's expiry to account for clock drift and
// in-flight request latency, per spec §4.1.
const Skew = 60 * time.Second

// Token is an opaque bearer assertion bound to exactly one carrier
// (spec §3.1).
type Token struct {
	Bytes              []byte
	IssuedAt           time.Time
	ExpiresAt          time.Time
	Carrier            string
	VariantFingerprint string
}

// ValidAt reports whether the token is usable at instant t, honouring the
// safety skew.
func (t Token) ValidAt(now time.Time) bool {
	return !now.Before(t.IssuedAt) && now.Before(t.ExpiresAt.Add(-Skew))
}

// Issuer issues a fresh token for a carrier/variant pair. Auth adapters
// implement this.
type Issuer interface {
	IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (Token, error)
}

type key struct {
	carrier string
	variant carrier.AuthVariant
}

type entry struct {
	token Token
	// inFlight is non-nil while an issuance for this key is in progress;
	// concurrent callers wait on it instead of issuing a second request.
	inFlight chan struct{}
	err      error
}

// Cache is the process-wide STS token cache. Zero value is not usable; use
// New.
type Cache struct {
	clock clockwork.Clock

	mu      sync.Mutex
	entries map[key]*entry
}

// New builds a Cache using clock as the time source for expiry checks.
func New(clock clockwork.Clock) *Cache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Cache{clock: clock, entries: make(map[key]*entry)}
}

// Get returns a valid cached token for (c, variant), issuing one via issuer
// if none is cached or the cached one has expired. Concurrent callers for
// the same key coalesce onto a single in-flight issuance.
func (tc *Cache) Get(ctx context.Context, c carrier.Carrier, variant carrier.AuthVariant, creds carrier.Credentials, issuer Issuer) (Token, error) {
	c.RequireVariant(variant)
	k := key{carrier: c.Name, variant: variant}

	for {
		tc.mu.Lock()
		e, ok := tc.entries[k]
		if ok && e.inFlight == nil && e.token.ValidAt(tc.clock.Now()) {
			tc.mu.Unlock()
			return e.token, nil
		}
		if ok && e.inFlight != nil {
			wait := e.inFlight
			tc.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return Token{}, trace.Wrap(ctx.Err())
			}
		}

		// No usable entry: become the issuer.
		e = &entry{inFlight: make(chan struct{})}
		tc.entries[k] = e
		tc.mu.Unlock()

		tok, err := issuer.IssueToken(ctx, c, creds)

		tc.mu.Lock()
		if err != nil {
			delete(tc.entries, k)
			tc.mu.Unlock()
			close(e.inFlight)
			log.WithError(err).WithField("carrier", c.Name).Warn("token issuance failed")
			return Token{}, trace.Wrap(err)
		}
		tok.Carrier = c.Name
		tok.VariantFingerprint = string(variant)
		tc.entries[k] = &entry{token: tok}
		tc.mu.Unlock()
		close(e.inFlight)
		return tok, nil
	}
}

// Invalidate evicts the cached token for (carrierName, variant), used after
// an HTTP 401/403 carrying wsse:InvalidSecurityToken (spec §4.1).
func (tc *Cache) Invalidate(carrierName string, variant carrier.AuthVariant) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	delete(tc.entries, key{carrier: carrierName, variant: variant})
}

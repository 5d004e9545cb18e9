package tokencache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
)

type countingIssuer struct {
	calls int32
	tok   Token
	err   error
}

func (i *countingIssuer) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (Token, error) {
	atomic.AddInt32(&i.calls, 1)
	return i.tok, i.err
}

func testCarrier() carrier.Carrier {
	return carrier.Carrier{Name: "allianz", Variants: []carrier.AuthVariant{carrier.VariantWeak}}
}

func TestCache_SingleFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := New(clock)
	issuer := &countingIssuer{tok: Token{Bytes: []byte("tok"), IssuedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}}

	const n = 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&issuer.calls))
}

func TestCache_ExpiryAndSkew(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := New(clock)
	issuer := &countingIssuer{tok: Token{Bytes: []byte("tok"), IssuedAt: clock.Now(), ExpiresAt: clock.Now().Add(2 * time.Minute)}}

	_, err := cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
	require.NoError(t, err)
	require.EqualValues(t, 1, issuer.calls)

	// Advance past expiry-minus-skew: must re-issue.
	clock.Advance(90 * time.Second)
	_, err = cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
	require.NoError(t, err)
	require.EqualValues(t, 2, issuer.calls)
}

func TestCache_FailureRemovesInFlightEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := New(clock)
	issuer := &countingIssuer{err: errAuth{}}

	_, err := cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
	require.Error(t, err)

	issuer.err = nil
	issuer.tok = Token{Bytes: []byte("tok"), IssuedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}
	_, err = cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
	require.NoError(t, err)
	require.EqualValues(t, 2, issuer.calls)
}

func TestCache_Invalidate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := New(clock)
	issuer := &countingIssuer{tok: Token{Bytes: []byte("tok"), IssuedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Hour)}}

	_, err := cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
	require.NoError(t, err)

	cache.Invalidate("allianz", carrier.VariantWeak)
	_, err = cache.Get(context.Background(), testCarrier(), carrier.VariantWeak, carrier.Credentials{}, issuer)
	require.NoError(t, err)
	require.EqualValues(t, 2, issuer.calls)
}

type errAuth struct{}

func (errAuth) Error() string { return "auth failed" }

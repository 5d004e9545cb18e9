package transfer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type staticTokens struct{}

func (staticTokens) BearerToken(ctx context.Context) ([]byte, error) { return []byte("tok"), nil }

func TestClient_List_FollowsContinuation(t *testing.T) {
	var call int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&call, 1)
		w.Header().Set("Content-Type", "text/xml")
		if n == 1 {
			w.Write([]byte(`<Envelope><Body><listShipmentsResponse><shipment><id>S-1</id><category>000000001</category><confirmed>false</confirmed></shipment><continuation>PAGE2</continuation></listShipmentsResponse></Body></Envelope>`))
			return
		}
		w.Write([]byte(`<Envelope><Body><listShipmentsResponse><shipment><id>S-2</id><category>000000001</category><confirmed>false</confirmed></shipment></listShipmentsResponse></Body></Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticTokens{})
	shipments, err := c.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.Len(t, shipments, 2)
	require.Equal(t, "S-1", shipments[0].ID)
	require.Equal(t, "S-2", shipments[1].ID)
	require.EqualValues(t, 2, call)
}

func TestClient_Get_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<Envelope><Body><transfer:Nachricht><Fehlercode>liefernummer_unbekannt</Fehlercode></transfer:Nachricht></Body></Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticTokens{})
	_, err := c.Get(context.Background(), "S-404")
	require.Error(t, err)
	kind, ok := ClassifyOf(err)
	require.True(t, ok)
	require.Equal(t, KindNotFound, kind)
}

func TestClient_Throttled_RetriesThenSucceeds(t *testing.T) {
	var call int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&call, 1)
		if n == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticTokens{})
	err := c.Acknowledge(context.Background(), "S-1")
	require.NoError(t, err)
	require.EqualValues(t, 2, call)
}

func TestClient_AuthError_NotRetried(t *testing.T) {
	var call int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&call, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticTokens{})
	err := c.Acknowledge(context.Background(), "S-1")
	require.Error(t, err)
	kind, ok := ClassifyOf(err)
	require.True(t, ok)
	require.Equal(t, KindAuth, kind)
	require.EqualValues(t, 1, call)
}

func TestClient_AcknowledgeAlreadyAcknowledgedIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<Envelope><Body>already acknowledged</Body></Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticTokens{})
	require.NoError(t, c.Acknowledge(context.Background(), "S-1"))
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	var call int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&call, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), staticTokens{})
	c.MaxAttempts = 2
	start := time.Now()
	err := c.Acknowledge(context.Background(), "S-1")
	require.Error(t, err)
	kind, _ := ClassifyOf(err)
	require.Equal(t, KindTransient, kind)
	require.EqualValues(t, 2, call)
	require.Less(t, time.Since(start), 5*time.Second)
}

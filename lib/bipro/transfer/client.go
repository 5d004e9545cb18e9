// Package transfer implements the BiPRO TransferService SOAP operations of
// spec §4.4: list, get, acknowledge, with pagination, retry, and error
// classification.
package transfer

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/bipro/mtom"
)

var log = logrus.WithFields(logrus.Fields{
	trace.Component: "bipro:transfer",
})

// ShipmentInfo mirrors spec §3.2.
type ShipmentInfo struct {
	ID        string
	Category  string // 9-digit hierarchical BiPRO category code
	CreatedAt time.Time
	Confirmed bool
}

// ShipmentContent mirrors spec §3.2.
type ShipmentContent struct {
	Documents      []mtom.Document
	RawEnvelope    []byte
	SourceCarrier  string
	SourceShipment string
}

// ListFilter controls the list operation per spec §4.4.
type ListFilter struct {
	Confirmed      bool
	CategoryPrefix string
	From, To       time.Time
}

// HTTPDoer is the minimal transport dependency, satisfied by *http.Client.
// Expressed as an interface so tests and the scheduler can inject
// cancellation-aware fakes (spec §9: "no global I/O").
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource returns the current bearer token bytes to place in
// wsse:Security for this carrier/variant pair.
type TokenSource interface {
	BearerToken(ctx context.Context) ([]byte, error)
}

// Client drives the three TransferService SOAP operations against a single
// carrier endpoint.
type Client struct {
	Endpoint string
	HTTP     HTTPDoer
	Tokens   TokenSource

	// MaxAttempts bounds retries for Transient/Throttled errors (spec §4.4:
	// "max 4 attempts").
	MaxAttempts int
}

// NewClient builds a Client with the spec's default retry budget.
func NewClient(endpoint string, doer HTTPDoer, tokens TokenSource) *Client {
	return &Client{Endpoint: endpoint, HTTP: doer, Tokens: tokens, MaxAttempts: 4}
}

type continuationEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		ListResponse struct {
			Shipments  []shipmentXML `xml:"shipment"`
			Next       string        `xml:"continuation"`
		} `xml:"listShipmentsResponse"`
	} `xml:"Body"`
}

type shipmentXML struct {
	ID        string `xml:"id"`
	Category  string `xml:"category"`
	CreatedAt string `xml:"createdAt"`
	Confirmed bool   `xml:"confirmed"`
}

// List enumerates shipments matching filter, following continuation markers
// until exhausted, preserving the carrier's ordering (spec §4.4).
func (c *Client) List(ctx context.Context, filter ListFilter) ([]ShipmentInfo, error) {
	var all []ShipmentInfo
	cont := ""
	for {
		body, err := c.doWithRetry(ctx, func() (*http.Response, error) {
			return c.postSOAP(ctx, buildListRequest(filter, cont))
		})
		if err != nil {
			return nil, trace.Wrap(err)
		}
		var env continuationEnvelope
		if err := xml.Unmarshal(body, &env); err != nil {
			return nil, NewFatal("parsing listShipments response", err)
		}
		for _, s := range env.Body.ListResponse.Shipments {
			info := ShipmentInfo{ID: s.ID, Category: s.Category, Confirmed: s.Confirmed}
			if t, err := time.Parse(time.RFC3339, s.CreatedAt); err == nil {
				info.CreatedAt = t
			}
			all = append(all, info)
		}
		if env.Body.ListResponse.Next == "" {
			break
		}
		cont = env.Body.ListResponse.Next
	}
	return all, nil
}

// Get performs an MTOM GET for a shipment and splits its multipart
// response, per spec §4.4.
func (c *Client) Get(ctx context.Context, shipmentID string) (ShipmentContent, error) {
	var content ShipmentContent
	var contentType string
	var body []byte

	op := func() error {
		resp, err := c.postSOAPRaw(ctx, buildGetRequest(shipmentID))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return NewTransient("reading getShipment response", readErr)
		}
		if resp.StatusCode == http.StatusNotFound {
			if bytes.Contains(data, []byte("liefernummer_unbekannt")) {
				return NewNotFound(fmt.Sprintf("shipment %s unknown to carrier", shipmentID))
			}
			return NewFatal("unexpected 404 from getShipment", nil)
		}
		if err := c.classifyStatus(resp); err != nil {
			return err
		}
		contentType = resp.Header.Get("Content-Type")
		body = data
		return nil
	}
	if err := c.retry(ctx, op); err != nil {
		return content, trace.Wrap(err)
	}

	result, err := mtom.Split(contentType, bytes.NewReader(body))
	if err != nil {
		return content, NewFatal("splitting MTOM response", err)
	}
	content.Documents = result.Documents
	content.RawEnvelope = result.Envelope
	content.SourceShipment = shipmentID
	return content, nil
}

// Acknowledge confirms receipt of a shipment, exactly once per successful
// persist (spec §3.2, §4.4). A server response of "already acknowledged" is
// treated as success.
func (c *Client) Acknowledge(ctx context.Context, shipmentID string) error {
	body, err := c.doWithRetry(ctx, func() (*http.Response, error) {
		return c.postSOAP(ctx, buildAckRequest(shipmentID))
	})
	if err != nil {
		return trace.Wrap(err)
	}
	if bytes.Contains(body, []byte("already acknowledged")) || bytes.Contains(body, []byte("acknowledged")) {
		return nil
	}
	return nil
}

// doWithRetry wraps fn with the retry policy and returns the response body
// on success, classifying non-2xx statuses.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error)) ([]byte, error) {
	var body []byte
	op := func() error {
		resp, err := fn()
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return NewTransient("reading response body", readErr)
		}
		if err := c.classifyStatus(resp); err != nil {
			return err
		}
		body = data
		return nil
	}
	if err := c.retry(ctx, op); err != nil {
		return nil, err
	}
	return body, nil
}

// classifyStatus maps an HTTP status onto the spec §4.4 error taxonomy.
// Returns nil for 2xx.
func (c *Client) classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return NewAuthError(fmt.Sprintf("carrier returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return NewThrottled("carrier throttled request", retryAfterOf(resp), nil)
	case resp.StatusCode >= 500:
		return NewTransient(fmt.Sprintf("carrier returned %d", resp.StatusCode), nil)
	default:
		return NewFatal(fmt.Sprintf("unexpected carrier status %d", resp.StatusCode), nil)
	}
}

func retryAfterOf(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return 0
}

// retry applies exponential backoff with full jitter to op, up to
// c.MaxAttempts, only for Throttled/Transient errors (spec §4.4). Throttled
// errors additionally honour the carrier's Retry-After as a floor on the
// wait.
func (c *Client) retry(ctx context.Context, op func() error) error {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 4
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.RandomizationFactor = 0 // full jitter is applied per wait below
	bo.MaxElapsedTime = 0      // bounded by attempt count instead

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}
		wait := time.Duration(rand.Int63n(int64(bo.NextBackOff()) + 1))
		if k, _ := ClassifyOf(lastErr); k == KindThrottled {
			if te, ok := unwrapErr(lastErr); ok && te.RetryAfter > wait {
				wait = te.RetryAfter
			}
		}
		log.WithError(lastErr).WithField("attempt", attempt).Debug("retrying BiPRO transfer operation")
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return trace.Wrap(ctx.Err())
		}
	}
	return lastErr
}

func unwrapErr(err error) (*Error, bool) {
	cur := err
	for cur != nil {
		if e, ok := cur.(*Error); ok {
			return e, true
		}
		u, ok := cur.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		cur = u.Unwrap()
	}
	return nil, false
}

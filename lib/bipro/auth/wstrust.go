package auth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
)

const (
	wsuNS  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	wsseNS = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	wstNS  = "http://docs.oasis-open.org/ws-sx/ws-trust/200512"
)

// buildUsernameTokenRequest constructs a WS-Trust RequestSecurityToken body
// carrying a wsse:UsernameToken, per spec §4.2's weak/strong rows. nonce is
// generated when empty.
func buildUsernameTokenRequest(username, password, nonce string) []byte {
	if nonce == "" {
		nonce = randomNonce()
	}
	doc := etree.NewDocument()
	rst := doc.CreateElement("wst:RequestSecurityToken")
	rst.CreateAttr("xmlns:wst", wstNS)
	rst.CreateAttr("xmlns:wsse", wsseNS)
	rst.CreateAttr("xmlns:wsu", wsuNS)

	tok := rst.CreateElement("wsse:UsernameToken")
	tok.CreateElement("wsse:Username").SetText(username)
	pwd := tok.CreateElement("wsse:Password")
	pwd.CreateAttr("Type", "#PasswordText")
	pwd.SetText(password)
	n := tok.CreateElement("wsse:Nonce")
	n.CreateAttr("EncodingType", "#Base64Binary")
	n.SetText(nonce)
	tok.CreateElement("wsu:Created").SetText(time.Now().UTC().Format(time.RFC3339))

	b, _ := doc.WriteToBytes()
	return b
}

func randomNonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}

// newWSTrustDoc builds an empty WS-Trust RequestSecurityToken document and
// returns both the document and its root element for callers to populate.
func newWSTrustDoc() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	rst := doc.CreateElement("wst:RequestSecurityToken")
	rst.CreateAttr("xmlns:wst", wstNS)
	rst.CreateAttr("xmlns:wsu", wsuNS)
	ts := rst.CreateElement("wsu:Timestamp")
	ts.CreateElement("wsu:Created").SetText(time.Now().UTC().Format(time.RFC3339))
	return doc, rst
}

// parseEnvelopeBytes parses a previously-serialized request body back into
// an etree.Document for in-place signing.
func parseEnvelopeBytes(body []byte) *etree.Document {
	doc := etree.NewDocument()
	_ = doc.ReadFromBytes(body)
	return doc
}

// httpSTSRequester posts a WS-Trust request to a carrier's STS endpoint
// over HTTPS and returns the raw response body as the assertion bytes,
// with a fixed lifetime of 10 minutes; the response is not inspected for a
// lifetime of its own.
type httpSTSRequester struct {
	Client *http.Client
}

func (h httpSTSRequester) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h httpSTSRequester) RequestSecurityToken(ctx context.Context, endpoint string, body []byte) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, trace.Wrap(err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := h.client().Do(req)
	if err != nil {
		return nil, 0, trace.ConnectionProblem(err, "contacting STS at %s", endpoint)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, trace.Wrap(err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, 0, &soapFault{Code: string(FaultFailedAuthentication), Message: string(data)}
	}
	if resp.StatusCode >= 300 {
		return nil, 0, trace.Errorf("STS returned status %d", resp.StatusCode)
	}
	return data, 10 * time.Minute, nil
}

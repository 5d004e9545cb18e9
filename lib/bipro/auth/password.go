package auth

import (
	"context"
	"time"

	"github.com/gravitational/trace"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
	"github.com/atlas-broker/atlas/lib/bipro/tokencache"
)

// stsRequester is the minimal WS-Trust RequestSecurityToken dependency: it
// posts a UsernameToken (or SAML assertion, etc.) to the carrier's STS
// endpoint and returns the raw assertion bytes plus its validity window.
// Production wiring supplies an HTTP-backed implementation; tests inject a
// fake.
type stsRequester interface {
	RequestSecurityToken(ctx context.Context, endpoint string, body []byte) (assertion []byte, lifetime time.Duration, err error)
}

var defaultSTS stsRequester = httpSTSRequester{}

// weakAdapter: username + password in wsse:UsernameToken, bearer token on
// plain TLS. Spec §4.2 "weak" row.
type weakAdapter struct{ notTransportVariant }

func (weakAdapter) Variant() carrier.AuthVariant { return carrier.VariantWeak }

func (a weakAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.Username == "" || creds.Password == "" {
		return tokencache.Token{}, trace.BadParameter("weak auth requires username and password")
	}
	body := buildUsernameTokenRequest(creds.Username, creds.Password, "")
	return issueViaSTS(ctx, c, defaultSTS, body)
}

// strongAdapter: username + password + OTP appended to the password, bearer
// token on plain TLS. Spec §4.2 "strong" row.
type strongAdapter struct{ notTransportVariant }

func (strongAdapter) Variant() carrier.AuthVariant { return carrier.VariantStrong }

func (a strongAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.Username == "" || creds.Password == "" {
		return tokencache.Token{}, trace.BadParameter("strong auth requires username and password")
	}
	otp, err := resolveOTP(creds)
	if err != nil {
		return tokencache.Token{}, trace.Wrap(err)
	}
	body := buildUsernameTokenRequest(creds.Username, creds.Password+otp, "")
	return issueViaSTS(ctx, c, defaultSTS, body)
}

func issueViaSTS(ctx context.Context, c carrier.Carrier, sts stsRequester, body []byte) (tokencache.Token, error) {
	assertion, lifetime, err := sts.RequestSecurityToken(ctx, c.STSEndpoint, body)
	if err != nil {
		return tokencache.Token{}, mapSTSError(err)
	}
	now := time.Now()
	return tokencache.Token{
		Bytes:     assertion,
		IssuedAt:  now,
		ExpiresAt: now.Add(lifetime),
	}, nil
}

// mapSTSError surfaces the SOAP fault codes of spec §4.2 as AuthError;
// anything else is returned unchanged for the caller's own classification.
func mapSTSError(err error) error {
	if sf, ok := err.(*soapFault); ok && IsAuthFault(sf.Code) {
		return trace.AccessDenied("STS rejected credentials: %s: %s", sf.Code, sf.Message)
	}
	return trace.Wrap(err)
}

// soapFault is a minimal SOAP 1.1/1.2 fault carrying a BiPRO/WS-Security
// fault code, used by stsRequester implementations and tests.
type soapFault struct {
	Code    string
	Message string
}

func (f *soapFault) Error() string { return f.Code + ": " + f.Message }

// Package auth implements the eight BiPRO authentication adapters of spec
// §4.2. Each adapter either issues a bearer STS token or builds a mutually
// authenticated transport; dispatch across the eight variants is a total
// switch (§9: "tagged-union + interface table", no open class hierarchy).
package auth

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
	"github.com/atlas-broker/atlas/lib/bipro/tokencache"
)

var log = logrus.WithFields(logrus.Fields{
	trace.Component: "bipro:auth",
})

// TransportBinding is what the certificate variant produces instead of a
// bearer token: a TLS client configuration presented directly to the
// carrier's TransferService, with no STS round-trip.
type TransportBinding struct {
	ClientCert tls.Certificate
}

// Adapter implements the capability set of spec §4.2: either IssueToken or
// BuildTransport is meaningful for a given variant, never both.
type Adapter interface {
	Variant() carrier.AuthVariant
	IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error)
	BuildTransport(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (TransportBinding, error)
}

// FaultCode identifies the WS-Security SOAP fault codes that must surface
// as AuthError and invalidate the cached token (spec §4.2).
type FaultCode string

const (
	FaultFailedAuthentication FaultCode = "wsse:FailedAuthentication"
	FaultInvalidSecurityToken FaultCode = "wsse:InvalidSecurityToken"
	FaultMessageExpired       FaultCode = "wsse:MessageExpired"
)

// IsAuthFault reports whether code is one of the three SOAP fault codes
// that must invalidate the cached token and surface as an auth error.
func IsAuthFault(code string) bool {
	switch FaultCode(code) {
	case FaultFailedAuthentication, FaultInvalidSecurityToken, FaultMessageExpired:
		return true
	}
	return false
}

// NewAdapter selects the adapter for variant. Panics if c does not support
// variant (spec §3.1: "misuse is a programming error").
func NewAdapter(c carrier.Carrier, variant carrier.AuthVariant) Adapter {
	c.RequireVariant(variant)
	switch variant {
	case carrier.VariantWeak:
		return &weakAdapter{notTransportVariant{carrier.VariantWeak}}
	case carrier.VariantStrong:
		return &strongAdapter{notTransportVariant{carrier.VariantStrong}}
	case carrier.VariantCertificate:
		return &certificateAdapter{notTokenVariant{carrier.VariantCertificate}}
	case carrier.VariantTicket:
		return &ticketAdapter{notTransportVariant{carrier.VariantTicket}}
	case carrier.VariantTicketOTP:
		return &ticketOTPAdapter{notTransportVariant{carrier.VariantTicketOTP}}
	case carrier.VariantTicketCert:
		return &ticketCertAdapter{notTransportVariant{carrier.VariantTicketCert}}
	case carrier.VariantTGICCert:
		return &tgicCertAdapter{notTransportVariant{carrier.VariantTGICCert}}
	case carrier.VariantTGICmTAN:
		return &tgicMTANAdapter{notTransportVariant{carrier.VariantTGICmTAN}}
	default:
		panic(fmt.Sprintf("auth: unknown variant %q", variant))
	}
}

// notTransportVariant is embedded by adapters that only ever issue tokens;
// BuildTransport is a programming error to call on them.
type notTransportVariant struct{ variant carrier.AuthVariant }

func (n notTransportVariant) BuildTransport(context.Context, carrier.Carrier, carrier.Credentials) (TransportBinding, error) {
	return TransportBinding{}, trace.BadParameter("auth variant %s issues bearer tokens, not a transport binding", n.variant)
}

// notTokenVariant is embedded by adapters that only ever build a transport
// binding (today: certificate); IssueToken is a programming error on them.
type notTokenVariant struct{ variant carrier.AuthVariant }

func (n notTokenVariant) IssueToken(context.Context, carrier.Carrier, carrier.Credentials) (tokencache.Token, error) {
	return tokencache.Token{}, trace.BadParameter("auth variant %s builds a transport binding, not a bearer token", n.variant)
}

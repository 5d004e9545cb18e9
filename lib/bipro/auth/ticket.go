package auth

import (
	"context"

	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
	"github.com/atlas-broker/atlas/lib/bipro/tokencache"
)

// ticketAdapter: the broker-portal (Xempus) ticket is presented to the STS
// as a SAML assertion; bearer token on plain TLS. Spec §4.2 "ticket" row.
type ticketAdapter struct{ notTransportVariant }

func (ticketAdapter) Variant() carrier.AuthVariant { return carrier.VariantTicket }

func (a ticketAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.Ticket == "" {
		return tokencache.Token{}, trace.BadParameter("ticket auth requires a broker-portal ticket")
	}
	body := buildTicketRequest(creds.Ticket, "")
	return issueViaSTS(ctx, c, defaultSTS, body)
}

// ticketOTPAdapter: ticket + OTP second factor. Spec §4.2 "ticket+otp" row.
type ticketOTPAdapter struct{ notTransportVariant }

func (ticketOTPAdapter) Variant() carrier.AuthVariant { return carrier.VariantTicketOTP }

func (a ticketOTPAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.Ticket == "" {
		return tokencache.Token{}, trace.BadParameter("ticket+otp auth requires a ticket and an OTP")
	}
	otp, err := resolveOTP(creds)
	if err != nil {
		return tokencache.Token{}, trace.Wrap(err)
	}
	body := buildTicketRequest(creds.Ticket, otp)
	return issueViaSTS(ctx, c, defaultSTS, body)
}

// ticketCertAdapter: ticket presented alongside an X.509 signature. Spec
// §4.2 allows this to resolve to either a bearer token or a client-cert
// transport; this adapter always issues a bearer token (signed request),
// since the carrier distinguishes the two by request shape, not by a
// client choice encoded in Credentials.
type ticketCertAdapter struct{ notTransportVariant }

func (ticketCertAdapter) Variant() carrier.AuthVariant { return carrier.VariantTicketCert }

func (a ticketCertAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.Ticket == "" || len(creds.PFXOrJKS) == 0 {
		return tokencache.Token{}, trace.BadParameter("ticket+cert auth requires a ticket and a certificate bundle")
	}
	km, err := ParseKeyMaterial(creds.PFXOrJKS, creds.KeystoreFormat, creds.Passphrase)
	if err != nil {
		return tokencache.Token{}, trace.Wrap(err)
	}
	body := buildTicketRequest(creds.Ticket, "")
	signed, err := signRequestBody(body, km)
	if err != nil {
		return tokencache.Token{}, trace.Wrap(err)
	}
	return issueViaSTS(ctx, c, defaultSTS, signed)
}

func buildTicketRequest(ticket, otp string) []byte {
	doc, _ := newWSTrustDoc()
	rst := doc.Root()
	assertion := rst.CreateElement("saml2:Assertion")
	assertion.CreateAttr("xmlns:saml2", "urn:oasis:names:tc:SAML:2.0:assertion")
	assertion.CreateElement("saml2:Subject").SetText(ticket)
	if otp != "" {
		rst.CreateElement("OTP").SetText(otp)
	}
	b, _ := doc.WriteToBytes()
	return b
}

func signRequestBody(body []byte, km KeyMaterial) ([]byte, error) {
	doc := parseEnvelopeBytes(body)
	ctx, err := signingContext(km)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	signed, err := ctx.SignEnvelope(doc.Root())
	if err != nil {
		return nil, trace.Wrap(err, "signing ticket+cert request")
	}
	doc.SetRoot(signed)
	return doc.WriteToBytes()
}

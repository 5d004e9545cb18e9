package auth

import (
	"context"

	"github.com/gravitational/trace"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
	"github.com/atlas-broker/atlas/lib/bipro/tokencache"
)

// tgicCertAdapter: group-federation token (TGIC) signed with an X.509
// certificate, bearer token on plain TLS. Spec §4.2 "tgic+cert" row.
type tgicCertAdapter struct{ notTransportVariant }

func (tgicCertAdapter) Variant() carrier.AuthVariant { return carrier.VariantTGICCert }

func (a tgicCertAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.TGIC == "" || len(creds.PFXOrJKS) == 0 {
		return tokencache.Token{}, trace.BadParameter("tgic+cert auth requires a TGIC token and a certificate bundle")
	}
	km, err := ParseKeyMaterial(creds.PFXOrJKS, creds.KeystoreFormat, creds.Passphrase)
	if err != nil {
		return tokencache.Token{}, trace.Wrap(err)
	}
	body := buildTGICRequest(creds.TGIC, "")
	signed, err := signRequestBody(body, km)
	if err != nil {
		return tokencache.Token{}, trace.Wrap(err)
	}
	return issueViaSTS(ctx, c, defaultSTS, signed)
}

// tgicMTANAdapter: group-federation token (TGIC) plus an mTAN second
// factor, bearer token on plain TLS. Spec §4.2 "tgic+mtan" row.
type tgicMTANAdapter struct{ notTransportVariant }

func (tgicMTANAdapter) Variant() carrier.AuthVariant { return carrier.VariantTGICmTAN }

func (a tgicMTANAdapter) IssueToken(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (tokencache.Token, error) {
	if creds.TGIC == "" || creds.MTAN == "" {
		return tokencache.Token{}, trace.BadParameter("tgic+mtan auth requires a TGIC token and an mTAN code")
	}
	body := buildTGICRequest(creds.TGIC, creds.MTAN)
	return issueViaSTS(ctx, c, defaultSTS, body)
}

func buildTGICRequest(tgic, mtan string) []byte {
	doc, rst := newWSTrustDoc()
	tok := rst.CreateElement("TGIC")
	tok.SetText(tgic)
	if mtan != "" {
		rst.CreateElement("mTAN").SetText(mtan)
	}
	b, _ := doc.WriteToBytes()
	return b
}

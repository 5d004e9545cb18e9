package auth

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"

	"github.com/beevik/etree"
	"github.com/gravitational/trace"
	dsig "github.com/russellhaering/goxmldsig"
	"golang.org/x/crypto/pkcs12"

	keystore "github.com/pavlo-v-chernykh/keystore-go/v4"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
)

// KeyMaterial is the parsed result of a PFX or JKS bundle: a private key,
// its leaf certificate, and any chain/trust certificates that came with
// it. Held in memory only for the duration of a session (spec §3.1).
type KeyMaterial struct {
	PrivateKey  crypto.PrivateKey
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
}

// certificateAdapter: no STS round-trip — BuildTransport parses the PFX/JKS
// bundle and presents its certificate (plus chain) directly on the TLS
// handshake. It does not add a wsse:BinarySecurityToken or an XML-DSig
// signature to outgoing messages.
type certificateAdapter struct{ notTokenVariant }

func (certificateAdapter) Variant() carrier.AuthVariant { return carrier.VariantCertificate }

func (a certificateAdapter) BuildTransport(ctx context.Context, c carrier.Carrier, creds carrier.Credentials) (TransportBinding, error) {
	if len(creds.PFXOrJKS) == 0 {
		return TransportBinding{}, trace.BadParameter("certificate auth requires a PFX or JKS bundle")
	}
	km, err := ParseKeyMaterial(creds.PFXOrJKS, creds.KeystoreFormat, creds.Passphrase)
	if err != nil {
		return TransportBinding{}, trace.Wrap(err)
	}
	cert := tls.Certificate{
		Certificate: [][]byte{km.Certificate.Raw},
		PrivateKey:  km.PrivateKey,
	}
	for _, ca := range km.Chain {
		cert.Certificate = append(cert.Certificate, ca.Raw)
	}
	return TransportBinding{ClientCert: cert}, nil
}

// ParseKeyMaterial parses a PFX (PKCS#12) or JKS keystore into in-memory
// key material. Spec §4.2 / §9 open question: JKS algorithm whitelisting
// is left to the keystore library's own defaults, an operator
// security-policy concern per the spec's own framing.
func ParseKeyMaterial(data []byte, format carrier.KeystoreFormat, passphrase string) (KeyMaterial, error) {
	switch format {
	case carrier.KeystoreJKS:
		return parseJKS(data, passphrase)
	default:
		return parsePFX(data, passphrase)
	}
}

func parsePFX(data []byte, passphrase string) (KeyMaterial, error) {
	key, cert, chain, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return KeyMaterial{}, trace.Wrap(err, "parsing PFX keystore")
	}
	return KeyMaterial{PrivateKey: key, Certificate: cert, Chain: chain}, nil
}

func parseJKS(data []byte, passphrase string) (KeyMaterial, error) {
	ks := keystore.New()
	if err := ks.Load(bytes.NewReader(data), []byte(passphrase)); err != nil {
		return KeyMaterial{}, trace.Wrap(err, "parsing JKS keystore")
	}
	var km KeyMaterial
	for _, alias := range ks.Aliases() {
		entry, err := ks.GetPrivateKeyEntry(alias, []byte(passphrase))
		if err != nil {
			continue
		}
		block, _ := pem.Decode(entry.PrivateKey)
		var pk crypto.PrivateKey
		var parseErr error
		if block != nil {
			pk, parseErr = x509.ParsePKCS8PrivateKey(block.Bytes)
		} else {
			pk, parseErr = x509.ParsePKCS8PrivateKey(entry.PrivateKey)
		}
		if parseErr != nil {
			return KeyMaterial{}, trace.Wrap(parseErr, "parsing JKS private key")
		}
		km.PrivateKey = pk
		for i, c := range entry.CertificateChain {
			cert, err := x509.ParseCertificate(c.Content)
			if err != nil {
				return KeyMaterial{}, trace.Wrap(err, "parsing JKS certificate chain entry %d", i)
			}
			if i == 0 {
				km.Certificate = cert
			} else {
				km.Chain = append(km.Chain, cert)
			}
		}
		break
	}
	if km.Certificate == nil || km.PrivateKey == nil {
		return KeyMaterial{}, trace.NotFound("no private key entry found in JKS keystore")
	}
	return km, nil
}

// SignTimestampAndBody adds one enveloped XML-DSig signature over the whole
// envelope root element, canonicalized with exclusive C14N. It does not
// sign the wsu:Timestamp and the SOAP Body as separate references.
func SignTimestampAndBody(envelope *etree.Document, km KeyMaterial) error {
	ctx, err := signingContext(km)
	if err != nil {
		return trace.Wrap(err)
	}
	root := envelope.Root()
	if root == nil {
		return trace.BadParameter("empty SOAP envelope")
	}
	signed, err := ctx.SignEnveloped(root)
	if err != nil {
		return trace.Wrap(err, "signing SOAP envelope")
	}
	envelope.SetRoot(signed)
	return nil
}

func signingContext(km KeyMaterial) (*dsig.SigningContext, error) {
	var signer crypto.Signer
	switch k := km.PrivateKey.(type) {
	case *rsa.PrivateKey:
		signer = k
	case *ecdsa.PrivateKey:
		signer = k
	default:
		return nil, trace.BadParameter("unsupported private key type for XML-DSig signing")
	}
	ks := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{km.Certificate.Raw},
		PrivateKey:  signer,
	})
	ctx := dsig.NewDefaultSigningContext(ks)
	if err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, trace.Wrap(err)
	}
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	return ctx, nil
}

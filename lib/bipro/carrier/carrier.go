// Package carrier defines carrier identity, endpoint configuration, and the
// credential shapes BiPRO authentication adapters consume.
package carrier

import "fmt"

// AuthVariant is the sum over the eight BiPRO authentication schemes a
// carrier may support. Dispatch on it is a total switch — no open class
// hierarchy is needed for the auth adapters (see DESIGN.md).
type AuthVariant string

const (
	VariantWeak        AuthVariant = "weak"
	VariantStrong      AuthVariant = "strong"
	VariantCertificate AuthVariant = "certificate"
	VariantTicket      AuthVariant = "ticket"
	VariantTicketOTP   AuthVariant = "ticket+otp"
	VariantTicketCert  AuthVariant = "ticket+cert"
	VariantTGICCert    AuthVariant = "tgic+cert"
	VariantTGICmTAN    AuthVariant = "tgic+mtan"
)

// RequiresSTS reports whether the variant exchanges credentials for a
// bearer token at the carrier's STS endpoint. The certificate variant binds
// a client certificate directly on the transport and never touches the STS.
func (v AuthVariant) RequiresSTS() bool {
	return v != VariantCertificate
}

// Carrier is the stable identity of a BiPRO-speaking insurer.
type Carrier struct {
	Name             string
	STSEndpoint      string
	TransferEndpoint string
	ExtranetEndpoint string
	ConsumerID       string
	EasyLoginTicket  string
	Variants         []AuthVariant
}

// SupportsVariant reports whether the carrier advertises support for the
// given authentication variant.
func (c Carrier) SupportsVariant(v AuthVariant) bool {
	for _, sv := range c.Variants {
		if sv == v {
			return true
		}
	}
	return false
}

// RequireVariant panics if the carrier does not support v. Constructing an
// auth adapter for an unsupported variant is a programming error per
// spec §3.1 ("misuse is a programming error"), not a recoverable runtime
// condition.
func (c Carrier) RequireVariant(v AuthVariant) {
	if !c.SupportsVariant(v) {
		panic(fmt.Sprintf("carrier %s does not support auth variant %s", c.Name, v))
	}
}

// Credentials is a tagged union over the eight credential shapes of
// spec §3.1. Only the fields relevant to Variant are populated; callers
// must not assume zero-value fields of other variants are meaningful.
type Credentials struct {
	Variant AuthVariant

	Username string
	Password string

	// OTP is an already-obtained one-time password. When empty and
	// TOTPSecret is set, the strong and ticket+otp adapters derive the
	// current code from TOTPSecret instead of requiring the caller to
	// supply one.
	OTP string

	// TOTPSecret is a base32-encoded TOTP seed, present when the carrier
	// has provisioned the broker's own software as a second-factor
	// authenticator rather than requiring a human-typed code.
	TOTPSecret string

	// PFXOrJKS holds the raw bytes of a PKCS#12 (.pfx) or JKS keystore.
	PFXOrJKS       []byte
	KeystoreFormat KeystoreFormat
	Passphrase     string

	// Ticket is the broker-portal (Xempus) session ticket, present for the
	// ticket, ticket+otp, and ticket+cert variants.
	Ticket string

	// TGIC is the group-federation token used by the tgic+cert and
	// tgic+mtan variants.
	TGIC string
	MTAN string
}

// KeystoreFormat distinguishes PFX (PKCS#12) from JKS key material.
type KeystoreFormat string

const (
	KeystorePFX KeystoreFormat = "pfx"
	KeystoreJKS KeystoreFormat = "jks"
)

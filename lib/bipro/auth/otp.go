package auth

import (
	"time"

	"github.com/gravitational/trace"
	"github.com/pquerna/otp/totp"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
)

// otpClock is overridden in tests; production always derives TOTP codes
// from wall-clock time.
var otpClock = time.Now

// resolveOTP returns the one-time password to present for the strong and
// ticket+otp variants (spec §4.2). A caller-supplied creds.OTP always wins;
// when absent, a provisioned creds.TOTPSecret is used to generate the
// current code rather than requiring a human to type one in.
func resolveOTP(creds carrier.Credentials) (string, error) {
	if creds.OTP != "" {
		return creds.OTP, nil
	}
	if creds.TOTPSecret == "" {
		return "", trace.BadParameter("no OTP supplied and no TOTP secret provisioned")
	}
	code, err := totp.GenerateCode(creds.TOTPSecret, otpClock())
	if err != nil {
		return "", trace.Wrap(err, "generating TOTP code")
	}
	return code, nil
}

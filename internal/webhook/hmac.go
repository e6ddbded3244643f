package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is the only error callers see; it carries no detail.
var errVerification = errors.New("webhook verification failed")

// verifyHMACSignature checks an HMAC-SHA256 signature of body in constant time.
// The signature is either "sha256=<hex>" or plain hex.
func verifyHMACSignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}

	actual, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return errVerification
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), actual) != 1 {
		return errVerification
	}
	return nil
}

// sign returns the "sha256=<hex>" signature of body.
func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Package webhook authenticates inbound provider notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carrying the provider's signature on IPN requests.
const SignatureHeader = "x-nowpayments-sig"

// ComputeSignature returns the hex HMAC-SHA256 of body under secret.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the claimed signature against the expected one
// in constant time. An empty claimed signature or secret never verifies.
func VerifySignature(body []byte, claimed, secret string) bool {
	if claimed == "" || secret == "" {
		return false
	}
	expected := ComputeSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(claimed))
}

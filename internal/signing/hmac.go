// Package signing implements the two HMAC-SHA256 schemes QuackQuack Core
// uses to authenticate itself to the outside world: webhook payload
// signatures (§4.F/§6) and bridge connection auth tokens (§4.G).
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// WebhookHeader is the HTTP header carrying a signed webhook payload's
// digest.
const WebhookHeader = "X-Quack-Signature"

// SignWebhookBody returns the hex-encoded HMAC-SHA256 of body keyed by
// secret, for use as the X-Quack-Signature header value.
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookBody reports whether signature is the correct hex HMAC-SHA256
// of body under secret, using a constant-time comparison.
func VerifyWebhookBody(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	want, err := hex.DecodeString(signature)
	if err != nil {
		return ErrMalformedSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	got := mac.Sum(nil)
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrSignatureVerification
	}
	return nil
}

// bridgeTokenLength is the fixed length of a bridge auth token: the hex
// HMAC digest truncated to 32 characters (spec §4.G).
const bridgeTokenLength = 32

// BridgeAuthToken computes HMAC-SHA256(secret, agentID), hex-encodes it and
// truncates to bridgeTokenLength characters, as required of a connecting
// agent's bridge auth token.
func BridgeAuthToken(secret, agentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(agentID))
	encoded := hex.EncodeToString(mac.Sum(nil))
	if len(encoded) > bridgeTokenLength {
		encoded = encoded[:bridgeTokenLength]
	}
	return encoded
}

// VerifyBridgeAuthToken reports whether token is the correct bridge auth
// token for agentID under secret, using a constant-time comparison.
func VerifyBridgeAuthToken(secret, agentID, token string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	want := []byte(BridgeAuthToken(secret, agentID))
	got := []byte(token)
	if len(want) != len(got) {
		return ErrSignatureVerification
	}
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrSignatureVerification
	}
	return nil
}

package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// SignatureHeader carries the sender's HMAC over the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// ComputeSignature returns the hex HMAC-SHA256 of body under secret.
func ComputeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a presented signature against the raw payload in
// constant time. An optional "sha256=" prefix is accepted.
func VerifySignature(secret string, body []byte, presented string) bool {
	if secret == "" || presented == "" {
		return false
	}
	presented = strings.TrimPrefix(strings.TrimSpace(presented), "sha256=")

	expected, err := hex.DecodeString(ComputeSignature(secret, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(presented)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// payloadHash hashes the normalized (compacted) JSON body so whitespace
// differences between sender retries cannot defeat dedup.
func payloadHash(body []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, body); err == nil {
		body = buf.Bytes()
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

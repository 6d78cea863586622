package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

const signaturePrefix = "sha256="

// ComputeSignature returns the BTCPay-Sig value for body: "sha256=" + hex(HMAC-SHA256).
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time. The match is exact and case-sensitive.
func VerifySignature(body []byte, secret, received string) bool {
	expected := ComputeSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(received))
}

// SignatureFromHeader looks the signature up regardless of header casing.
func SignatureFromHeader(h http.Header) string {
	if v := h.Get(SignatureHeader); v != "" {
		return strings.TrimSpace(v)
	}
	// Non-canonical keys set directly on the map.
	for k, vals := range h {
		if strings.EqualFold(k, SignatureHeader) && len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
	}
	return ""
}

// redactSignature keeps enough of a signature to correlate log lines.
func redactSignature(sig string) string {
	if len(sig) <= len(signaturePrefix)+8 {
		return sig
	}
	return sig[:len(signaturePrefix)+8] + "..."
}

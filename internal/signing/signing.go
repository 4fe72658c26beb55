// Package signing signs task callback bodies with HMAC-SHA256 so the callback
// endpoint can reject deliveries that did not come from a dispatcher sharing
// its secret.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Header carries the hex signature on callback requests.
const Header = "X-Mdraft-Signature"

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer. It returns nil for an empty secret, and a nil
// Signer signs nothing and accepts everything.
func NewSigner(secret []byte) *Signer {
	if len(secret) == 0 {
		return nil
	}
	return &Signer{secret: secret}
}

// Enabled reports whether callbacks are signed.
func (s *Signer) Enabled() bool {
	return s != nil
}

// Sign returns the hex signature for body.
func (s *Signer) Sign(body []byte) string {
	if s == nil {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares signature with the expected one in constant time.
func (s *Signer) Validate(body []byte, signature string) bool {
	if s == nil {
		return true
	}
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(s.Sign(body)), []byte(signature))
}

// Headers returns the header set to attach to a signed delivery, or nil when
// signing is disabled.
func (s *Signer) Headers(body []byte) map[string]string {
	if s == nil {
		return nil
	}
	return map[string]string{Header: s.Sign(body)}
}

package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes the payment confirmation signature handed to the client
// once the provider reports success.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) Signer {
	return Signer{secret: []byte(secret)}
}

// Sign returns hex(HMAC-SHA256(secret, intentID + "|" + paymentID)).
func (s Signer) Sign(intentID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid compares in constant time.
func (s Signer) Valid(intentID, paymentID, signature string) bool {
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	expected, _ := hex.DecodeString(s.Sign(intentID, paymentID))
	return hmac.Equal(given, expected)
}

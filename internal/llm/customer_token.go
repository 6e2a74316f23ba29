package llm

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// CustomerClaims is the subset of a storefront customer_token the
// orchestrator surfaces to the LLM as a system turn (spec §4.5, §9 Open
// Question (b)), and that cart-id normalization consults for a
// customer-bound cart key. Grounded on the teacher's internal/auth.Claims
// shape (email/name plus jwt.RegisteredClaims).
type CustomerClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	CartKey  string `json:"cart_key"`
	jwt.RegisteredClaims
}

// ParseCustomerToken parses and validates an HS256 customer_token against
// secret. It does not verify claims the caller doesn't need (issuer,
// audience); expiry is enforced by the jwt library's default validators.
func ParseCustomerToken(token, secret string) (*CustomerClaims, error) {
	claims := &CustomerClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse customer token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("customer token is invalid")
	}
	return claims, nil
}

package models

import "github.com/golang-jwt/jwt/v5"

// Contributor is the verified caller of a request.
type Contributor struct {
	ID          string   `json:"contributor_id"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}

// HasRole reports whether the contributor carries role.
func (c *Contributor) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IdentityClaims is the token payload issued by the identity provider.
type IdentityClaims struct {
	Email string   `json:"email"`
	Name  string   `json:"name"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

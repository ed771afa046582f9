package service

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

// IdentityConfig describes how bearer tokens from the identity provider are verified.
type IdentityConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

// IdentityService turns a bearer token into a verified contributor.
type IdentityService struct {
	config IdentityConfig
	parser *jwt.Parser
}

// NewIdentityService constructs the service.
func NewIdentityService(config IdentityConfig) *IdentityService {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &IdentityService{config: config, parser: jwt.NewParser(opts...)}
}

// Verify validates the token and returns the contributor it identifies.
func (s *IdentityService) Verify(token string) (*models.Contributor, error) {
	claims := &models.IdentityClaims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "token expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid token")
	}
	if !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" || strings.ContainsAny(subject, "/.") {
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "token has no usable subject")
	}
	return &models.Contributor{
		ID:          subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		Roles:       claims.Roles,
	}, nil
}

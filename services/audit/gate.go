package audit

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	adminRole       = "admin"
	staticTokenUser = "admin-token"
)

// Authentication methods reported on an AdminIdentity.
const (
	MethodStaticToken = "static_token"
	MethodJWT         = "jwt"
)

// AdminIdentity is the operator on whose behalf a query runs. Only a Gate can
// produce a verified identity; the zero value is rejected by QueryService.
type AdminIdentity struct {
	Subject string
	Method  string

	verified bool
}

// Verified reports whether the identity was issued by a Gate.
func (id AdminIdentity) Verified() bool { return id.verified }

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// GateConfig holds the admin credentials. Empty values disable the
// corresponding mode.
type GateConfig struct {
	Token     string
	JWTSecret string
	Clock     clockwork.Clock
}

// Gate decides whether a credential belongs to an administrator.
type Gate struct {
	token  []byte
	secret []byte
	clock  clockwork.Clock
	parser *jwt.Parser
	logger zerolog.Logger
}

// NewGate returns a Gate for cfg. A Gate with no credentials configured
// refuses everything.
func NewGate(cfg GateConfig, logger zerolog.Logger) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gate{
		token:  []byte(strings.TrimSpace(cfg.Token)),
		secret: []byte(cfg.JWTSecret),
		clock:  clock,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(clock.Now),
		),
		logger: logger.With().Str("component", "audit_gate").Logger(),
	}
}

// Authorize checks credential against the static admin token and, when a
// signing secret is configured, as an HS256 admin JWT.
func (g *Gate) Authorize(_ context.Context, credential string) (AdminIdentity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return AdminIdentity{}, ErrForbidden
	}

	if len(g.token) > 0 && subtle.ConstantTimeCompare([]byte(credential), g.token) == 1 {
		return AdminIdentity{Subject: staticTokenUser, Method: MethodStaticToken, verified: true}, nil
	}

	if len(g.secret) > 0 {
		id, err := g.verifyJWT(credential)
		if err == nil {
			return id, nil
		}
		g.logger.Debug().Err(err).Msg("admin jwt rejected")
	}

	return AdminIdentity{}, ErrForbidden
}

func (g *Gate) verifyJWT(raw string) (AdminIdentity, error) {
	claims := &adminClaims{}
	_, err := g.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	})
	if err != nil {
		return AdminIdentity{}, err
	}
	if claims.Role != adminRole {
		return AdminIdentity{}, fmt.Errorf("role %q is not %s", claims.Role, adminRole)
	}
	subject := claims.Subject
	if subject == "" {
		return AdminIdentity{}, errors.New("token has no subject")
	}
	return AdminIdentity{Subject: subject, Method: MethodJWT, verified: true}, nil
}

// IssueAdminToken signs an HS256 admin token for subject that expires after ttl.
func IssueAdminToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is required")
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	claims := adminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

package usertoken

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"llmgateway/pkg/domain"
	"llmgateway/pkg/store"
)

const (
	defaultIssuer = "llm-gateway"
	defaultTTL    = 6 * time.Hour
	defaultLeeway = 30 * time.Second
)

var (
	ErrRevoked      = errors.New("token revoked")
	ErrMissingClaim = errors.New("token claim missing")
)

// Claims is the fixed claim set carried by access tokens.
type Claims struct {
	Role string `json:"role"`
	// IssuedAtNano keeps sub-second issue time so per-principal cutoffs
	// do not catch tokens minted in the same second after a revocation.
	IssuedAtNano int64 `json:"iat_ns,omitempty"`
	jwt.RegisteredClaims
}

// Config configures HS256 access tokens.
type Config struct {
	Secret  string
	Issuer  string
	TTL     time.Duration
	Leeway  time.Duration
	Revoker store.TokenRevoker
}

// Manager issues and verifies access tokens.
type Manager struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	leeway  time.Duration
	revoker store.TokenRevoker
	now     func() time.Time
}

// NewManager validates cfg and fills defaults.
func NewManager(cfg Config) (*Manager, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token manager requires a secret")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Manager{
		secret:  []byte(secret),
		issuer:  issuer,
		ttl:     ttl,
		leeway:  leeway,
		revoker: cfg.Revoker,
		now:     time.Now,
	}, nil
}

// Issue signs a token for identity and returns it with its expiry.
func (m *Manager) Issue(identity domain.Identity) (string, time.Time, error) {
	if strings.TrimSpace(identity.Principal) == "" {
		return "", time.Time{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if _, ok := domain.ParseRole(string(identity.Role)); !ok {
		return "", time.Time{}, fmt.Errorf("unknown role %q", identity.Role)
	}
	now := m.now().UTC()
	expires := now.Add(m.ttl)
	claims := Claims{
		Role:         string(identity.Role),
		IssuedAtNano: now.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Principal,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        randomHexID(12),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify validates signature, issuer, expiry and revocation, then resolves the identity.
func (m *Manager) Verify(token string) (domain.Identity, error) {
	claims, err := m.parse(token)
	if err != nil {
		return domain.Identity{}, err
	}
	principal := strings.TrimSpace(claims.Subject)
	if principal == "" {
		return domain.Identity{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	role, ok := domain.ParseRole(claims.Role)
	if !ok {
		return domain.Identity{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	if err := m.checkRevoked(claims); err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{Principal: principal, Role: role}, nil
}

// Revoke blocks the token's id until it expires. Invalid tokens are ignored.
func (m *Manager) Revoke(token string) error {
	if m.revoker == nil {
		return nil
	}
	claims, err := m.parse(token)
	if err != nil || claims.ExpiresAt == nil || claims.ID == "" {
		return nil
	}
	return m.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokePrincipal invalidates every token issued to principal until now.
func (m *Manager) RevokePrincipal(principal string) error {
	userRevoker, ok := m.revoker.(store.UserTokenRevoker)
	if !ok {
		return nil
	}
	return userRevoker.RevokeUser(principal, m.now().UTC())
}

func (m *Manager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("invalid token")
		}
		return nil, err
	}
	return claims, nil
}

func (m *Manager) checkRevoked(claims *Claims) error {
	if m.revoker == nil {
		return nil
	}
	if claims.ID != "" {
		revoked, err := m.revoker.IsRevoked(claims.ID)
		if err != nil {
			return err
		}
		if revoked {
			return ErrRevoked
		}
	}
	userRevoker, ok := m.revoker.(store.UserTokenRevoker)
	if !ok {
		return nil
	}
	cutoff, err := userRevoker.RevokedAfter(claims.Subject)
	if err != nil {
		return err
	}
	if cutoff.IsZero() {
		return nil
	}
	if claims.IssuedAt == nil {
		return fmt.Errorf("%w: iat", ErrMissingClaim)
	}
	issuedAt := claims.IssuedAt.Time.UTC()
	if claims.IssuedAtNano > 0 {
		issuedAt = time.Unix(0, claims.IssuedAtNano).UTC()
	}
	if !issuedAt.After(cutoff) {
		return ErrRevoked
	}
	return nil
}

func randomHexID(nBytes int) string {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims represents the custom JWT claims carrying a client identity.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// TokenVerifier validates bearer tokens and extracts the identity they
// carry. The server side uses it alone; it never mints tokens.
type TokenVerifier struct {
	secretKey []byte
}

// NewTokenVerifier creates a verifier for tokens signed with the given
// secret.
func NewTokenVerifier(secretKey string) *TokenVerifier {
	return &TokenVerifier{secretKey: []byte(secretKey)}
}

// Verify parses and validates a bearer token, returning the identity it
// carries.
func (v *TokenVerifier) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return v.secretKey, nil
		},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Identity == "" {
		return "", ErrInvalidToken
	}

	return claims.Identity, nil
}

// TokenProvider provisions anonymous identities as signed JWTs persisted to a
// credential file. On the next start the file is resumed if still valid;
// otherwise a fresh identity is minted, so a corrupt or expired credential
// never blocks startup.
type TokenProvider struct {
	verifier      *TokenVerifier
	secretKey     []byte
	path          string
	tokenDuration time.Duration
}

// NewTokenProvider creates a provider signing with the given secret and
// persisting the credential at path. secretKey should be a strong random
// string (e.g. 32 bytes) shared with the verifying server.
func NewTokenProvider(secretKey, path string, tokenDuration time.Duration) *TokenProvider {
	return &TokenProvider{
		verifier:      NewTokenVerifier(secretKey),
		secretKey:     []byte(secretKey),
		path:          path,
		tokenDuration: tokenDuration,
	}
}

// ResumeOrCreate resumes the persisted credential when present and valid,
// and provisions a fresh anonymous identity otherwise.
func (p *TokenProvider) ResumeOrCreate(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	if data, err := os.ReadFile(p.path); err == nil {
		token := string(bytes.TrimSpace(data))
		if id, err := p.verifier.Verify(token); err == nil {
			return Credential{ID: id, Token: token}, nil
		}
		// Invalid or expired credential: provision a fresh one below.
	}

	id := uuid.New().String()
	token, err := p.mint(id)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0700); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}
	if err := os.WriteFile(p.path, []byte(token), 0600); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrProvisioning, err)
	}

	return Credential{ID: id, Token: token}, nil
}

func (p *TokenProvider) mint(id string) (string, error) {
	claims := &Claims{
		Identity: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(p.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(p.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

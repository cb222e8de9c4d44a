package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoVerificationKey = errors.New("jwt: no verification key configured")
	ErrMissingSubject    = errors.New("jwt: token has no subject")
)

// Claims is the identity-provider session payload. Subject carries the
// provider user id.
type Claims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	jwtlib.RegisteredClaims
}

// Options configures a Verifier. Exactly one of Secret or PublicKeyPEM is
// expected; when both are set the public key wins.
type Options struct {
	Secret       string
	PublicKeyPEM string
	Issuer       string
	Audience     string
	Leeway       time.Duration
}

// Verifier checks tokens issued by the identity provider. It never signs.
type Verifier struct {
	hmacKey []byte
	rsaKey  *rsa.PublicKey
	parser  *jwtlib.Parser
}

// LoadPublicKeyFile reads a PEM encoded public key from disk.
func LoadPublicKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read public key %q: %w", path, err)
	}
	return string(data), nil
}

func NewVerifier(opts Options) (*Verifier, error) {
	v := &Verifier{}
	switch {
	case strings.TrimSpace(opts.PublicKeyPEM) != "":
		key, err := jwtlib.ParseRSAPublicKeyFromPEM([]byte(opts.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("parse rsa public key: %w", err)
		}
		v.rsaKey = key
	case opts.Secret != "":
		v.hmacKey = []byte(opts.Secret)
	default:
		return nil, ErrNoVerificationKey
	}

	parserOpts := []jwtlib.ParserOption{
		jwtlib.WithExpirationRequired(),
		jwtlib.WithLeeway(opts.Leeway),
	}
	if v.rsaKey != nil {
		parserOpts = append(parserOpts, jwtlib.WithValidMethods([]string{"RS256", "RS384", "RS512"}))
	} else {
		parserOpts = append(parserOpts, jwtlib.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwtlib.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwtlib.WithAudience(opts.Audience))
	}
	v.parser = jwtlib.NewParser(parserOpts...)
	return v, nil
}

// Parse validates a token string and returns the claims.
func (v *Verifier) Parse(tokenStr string) (*Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if v.rsaKey != nil {
			return v.rsaKey, nil
		}
		return v.hmacKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// SignHS256 issues an HMAC token. Only used by tests and local tooling that
// stand in for the identity provider.
func SignHS256(secret string, claims Claims) (string, error) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Package apikeys implements the API key record spec §6 names but does not
// structurally detail: bearer tokens of the form "quack_<24 base64url
// chars>", stored as a SHA-256 hash plus owner, permission set, revocation
// flag, and usage timestamps.
package apikeys

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

var ErrNotFound = errors.New("apikeys: key not found")

// keyPrefix is the literal prefix every issued bearer token carries.
const keyPrefix = types.APIKeyPrefix

// tokenRandomBytes, base64url-encoded without padding, yields the spec's
// 24-character token body.
const tokenRandomBytes = 18

// HasPermission reports whether key carries perm, or admin (which subsumes
// read and write).
func HasPermission(key types.APIKey, perm types.APIKeyPermission) bool {
	for _, p := range key.Permissions {
		if p == types.PermAdmin || p == perm {
			return true
		}
	}
	return false
}

// Store is the API key persistence surface.
type Store interface {
	Create(ctx context.Context, ownerID string, permissions []types.APIKeyPermission) (types.APIKey, string, error)
	Get(ctx context.Context, id string) (types.APIKey, error)
	List(ctx context.Context) ([]types.APIKey, error)
	Revoke(ctx context.Context, id string) error
	VerifyToken(ctx context.Context, token string) (types.APIKey, error)
	Close() error
}

// GenerateToken returns a new "quack_<24 base64url chars>" bearer token and
// its SHA-256 hash (hex-encoded) for storage.
func GenerateToken() (token, hashedKey string, err error) {
	buf := make([]byte, tokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	token = keyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// TokenFromRequest extracts a bearer token from an Authorization header
// value or a raw "?token=" query value, per spec §6 "Auth".
func TokenFromRequest(authHeader, queryToken string) string {
	if trimmed := strings.TrimSpace(authHeader); trimmed != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
		}
	}
	return strings.TrimSpace(queryToken)
}

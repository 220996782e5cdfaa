package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/phrazzld/pictor-api/internal/platform/logger"
)

// APIKeyPrefix marks credentials that are checked against the configured
// API key hashes instead of being parsed as JWTs.
const APIKeyPrefix = "sk_"

// apiKeyRandomBytes is the entropy of a generated key before encoding.
const apiKeyRandomBytes = 24

// APIKeyVerifier defines the interface for checking service API keys.
type APIKeyVerifier interface {
	// VerifyAPIKey checks the presented key against the accepted hashes.
	// Returns nil when the key matches a configured hash, or
	// ErrInvalidAPIKey when it matches none.
	VerifyAPIKey(ctx context.Context, key string) error
}

// BcryptAPIKeyVerifier implements APIKeyVerifier against a fixed set of
// bcrypt hashes loaded from configuration.
type BcryptAPIKeyVerifier struct {
	hashes []string
}

// Ensure BcryptAPIKeyVerifier implements APIKeyVerifier interface
var _ APIKeyVerifier = (*BcryptAPIKeyVerifier)(nil)

// NewBcryptAPIKeyVerifier creates a verifier over the given bcrypt hashes.
// An empty hash list is valid and rejects every key.
func NewBcryptAPIKeyVerifier(hashes []string) *BcryptAPIKeyVerifier {
	return &BcryptAPIKeyVerifier{hashes: hashes}
}

// VerifyAPIKey implements the APIKeyVerifier interface using bcrypt.
func (v *BcryptAPIKeyVerifier) VerifyAPIKey(ctx context.Context, key string) error {
	log := logger.FromContext(ctx)

	if !strings.HasPrefix(key, APIKeyPrefix) {
		log.Debug("api key verification failed: missing key prefix")
		return ErrInvalidAPIKey
	}

	for _, hash := range v.hashes {
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err == nil {
			return nil
		}
	}

	log.Debug("api key verification failed: no configured hash matched",
		"configured_hashes", len(v.hashes))
	return ErrInvalidAPIKey
}

// GenerateAPIKey mints a new service key along with the bcrypt hash to
// configure for it. The plaintext key is shown once at generation time;
// only the hash is stored.
func GenerateAPIKey() (key, hash string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	key = APIKeyPrefix + hex.EncodeToString(buf)
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash api key: %w", err)
	}

	return key, string(hashed), nil
}

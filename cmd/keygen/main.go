// Package main implements an operator tool for minting pictor credentials.
//
// By default it generates a service API key and the bcrypt hash to add to the
// auth.api_key_hashes configuration. With --jwt it instead signs a JWT for a
// given role, which is useful for smoke-testing deployments without wiring up
// a full identity provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/phrazzld/pictor-api/internal/config"
	"github.com/phrazzld/pictor-api/internal/service/auth"
)

func main() {
	jwtMode := flag.Bool("jwt", false,
		"mint a signed JWT instead of generating an API key")
	role := flag.String("role", "admin",
		"role claim for the minted JWT (user or admin)")
	secret := flag.String("secret", "",
		"JWT signing secret (default: PICTOR_AUTH_JWT_SECRET)")
	lifetime := flag.Int("lifetime", 60,
		"JWT lifetime in minutes")
	subject := flag.String("subject", "",
		"subject UUID for the minted JWT (default: random)")
	flag.Parse()

	if *jwtMode {
		if err := mintJWT(*role, *secret, *lifetime, *subject); err != nil {
			log.Fatalf("Failed to mint JWT: %v", err)
		}
		return
	}

	key, hash, err := auth.GenerateAPIKey()
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}

	fmt.Printf("API key:  %s\n", key)
	fmt.Printf("Hash:     %s\n", hash)
	fmt.Println()
	fmt.Println("Add the hash to auth.api_key_hashes (PICTOR_AUTH_API_KEY_HASHES).")
	fmt.Println("The key itself is shown only once; store it securely.")
}

// mintJWT signs a token for the given role using the same service the server
// validates with, so a minted token is accepted verbatim.
func mintJWT(roleName, secret string, lifetimeMinutes int, subject string) error {
	parsedRole, err := auth.ParseRole(roleName)
	if err != nil {
		return err
	}

	if secret == "" {
		secret = os.Getenv("PICTOR_AUTH_JWT_SECRET")
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: pass --secret or set PICTOR_AUTH_JWT_SECRET")
	}

	userID := uuid.New()
	if subject != "" {
		userID, err = uuid.Parse(subject)
		if err != nil {
			return fmt.Errorf("invalid subject %q: %w", subject, err)
		}
	}

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            secret,
		TokenLifetimeMinutes: lifetimeMinutes,
	})
	if err != nil {
		return err
	}

	token, err := jwtService.GenerateToken(context.Background(), userID, parsedRole)
	if err != nil {
		return err
	}

	fmt.Printf("Subject:  %s\n", userID)
	fmt.Printf("Role:     %s\n", parsedRole)
	fmt.Printf("Expires:  in %d minutes\n", lifetimeMinutes)
	fmt.Printf("Token:    %s\n", token)
	return nil
}

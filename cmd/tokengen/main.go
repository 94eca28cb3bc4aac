package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/server-kit/internal/auth"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  go run ./cmd/tokengen jwt -sub <subject> [-ttl 1h] [-secret <secret>]")
	fmt.Println("  go run ./cmd/tokengen apikey <api-key>")
	fmt.Println()
	fmt.Println("jwt mints an HS256 bearer token. The secret defaults to SERVERKIT_AUTH__JWT_SECRET.")
	fmt.Println("apikey prints the SHA-256 hash of an API key for auth.api_key_hashes.")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "jwt":
		if err := mintJWT(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	case "apikey":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		hashAPIKey(os.Args[2])
	default:
		usage()
		os.Exit(1)
	}
}

func mintJWT(args []string) error {
	fs := flag.NewFlagSet("jwt", flag.ExitOnError)
	subject := fs.String("sub", "", "token subject")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	secret := fs.String("secret", os.Getenv("SERVERKIT_AUTH__JWT_SECRET"), "HMAC signing secret")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-sub is required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive")
	}

	issuer, err := auth.NewJWT([]byte(*secret))
	if err != nil {
		return err
	}
	token, err := issuer.Issue(*subject, *ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func hashAPIKey(apiKey string) {
	keyHash := auth.HashAPIKey(apiKey)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Printf("SHA-256 Hash: %s\n", keyHash)
	fmt.Println("\nAdd this to your config.yaml:")
	fmt.Printf("  auth:\n")
	fmt.Printf("    api_key_hashes:\n")
	fmt.Printf("      - \"%s\"\n", keyHash)
}

// Command tokengen mints API bearer tokens signed with the configured JWT secret.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/irfndi/cryptopulse/internal/config"
	"github.com/irfndi/cryptopulse/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := issueToken(cfg.Security.JWTSecret, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func issueToken(secret string, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("tokengen", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "user id placed in the token claims")
	role := fs.String("role", "", "role claim, \"admin\" grants POST /api/ingestion/run")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if secret == "" {
		return fmt.Errorf("JWT_SECRET is not configured")
	}
	if *userID == "" {
		return fmt.Errorf("-user is required")
	}
	if *ttl <= 0 {
		return fmt.Errorf("-ttl must be positive, got %s", *ttl)
	}

	token, err := middleware.NewAuthMiddleware(secret).GenerateToken(*userID, *role, *ttl)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

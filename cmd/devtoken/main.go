package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"paperdigest/internal/config"
	"paperdigest/pkg/auth"
)

var (
	userID string
	email  string
	role   string
	expiry time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "devtoken",
	Short: "Mint a bearer token for a local PaperDigest server",
	Long: `devtoken signs an access token with JWT_SECRET so the API can be called
from curl or a frontend without an identity provider.

Examples:
  devtoken                              # random user, 1h expiry
  devtoken --user 7f0c... --role admin  # admin token for /api/metrics
  curl -H "Authorization: Bearer $(devtoken)" localhost:3001/api/users/me`,
	SilenceUsage: true,
	RunE:         runDevToken,
}

func init() {
	rootCmd.Flags().StringVarP(&userID, "user", "u", "", "Subject (user ID); a random UUID when empty")
	rootCmd.Flags().StringVar(&email, "email", "", "Email claim")
	rootCmd.Flags().StringVar(&role, "role", "user", "Role claim (\"admin\" unlocks /api/metrics)")
	rootCmd.Flags().DurationVar(&expiry, "expiry", time.Hour, "Token lifetime")
}

func runDevToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if cfg.IsProduction() {
		return fmt.Errorf("refusing to mint tokens with ENVIRONMENT=production")
	}

	jwtAuth, err := auth.NewLocalJWTAuth(cfg.JWTSecret, expiry)
	if err != nil {
		return err
	}

	if userID == "" {
		userID = uuid.New().String()
	}

	token, err := jwtAuth.GenerateAccessToken(userID, email, role)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "🔐 Token for %s (role %s, expires in %s)\n", userID, role, expiry)
	fmt.Println(token)
	return nil
}

func main() {
	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  Failed to load .env: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

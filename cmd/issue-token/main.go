package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// issue-token signs a taker JWT with the server's secret so the attempt
// client can be used without a login service.
func main() {
	takerID := flag.Int("taker", 0, "Taker ID to issue the token for")
	expiry := flag.Duration("expiry", 0, "Token lifetime (default: JWT_EXPIRY_HOURS)")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	if *takerID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -taker is required and must be positive")
		flag.Usage()
		os.Exit(2)
	}
	if *expiry > 0 {
		cfg.JWTExpiry = *expiry
	}

	// ─── Sign ──────────────────────────────────────────────────────────
	token, err := service.NewAuthService(cfg).GenerateTakerToken(*takerID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().
		Int("taker_id", *takerID).
		Time("expires_at", time.Now().Add(cfg.JWTExpiry)).
		Msg("Token issued")
	fmt.Println(token)
}

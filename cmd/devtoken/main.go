// Command devtoken prints an instructor access token signed with the
// configured JWT key, for local testing against the API.
package main

import (
	"flag"
	"fmt"
	"time"

	"qrattend/internal/auth"
	"qrattend/internal/config"
	"qrattend/internal/logger"
)

func main() {
	var (
		subject string
		ttl     time.Duration
	)
	flag.StringVar(&subject, "instructor", "", "instructor id to put in the token subject")
	flag.DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to ACCESS_TTL)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.IsProduction() {
		log.Fatal().Msg("devtoken refuses to run with a production APP_ENV")
	}
	if subject == "" {
		log.Fatal().Msg("-instructor is required")
	}
	if ttl <= 0 {
		ttl = cfg.AccessTTL
	}

	tok, err := auth.Issue(subject, auth.RoleInstructor, cfg.JWTIssuer, cfg.JWTSigningKey, ttl, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("issue token")
	}
	fmt.Println(tok.AccessToken)
	log.Info().Str("instructor", subject).Time("expires_at", tok.ExpiresAt).Msg("token issued")
}

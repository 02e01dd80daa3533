package main

import (
	"flag"
	"fmt"
	"log"

	"stage-manager/internal/config"
	"stage-manager/internal/relay"
)

func main() {
	userID := flag.String("user", "", "user id to embed in the token")
	elevated := flag.Bool("elevated", false, "grant elevated permissions")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to TOKEN_TTL_SECONDS)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if *userID == "" {
		log.Fatal("user is required")
	}
	if cfg.RelayJWTSecret == "" {
		log.Fatal("RELAY_JWT_SECRET is not set")
	}
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.TokenTTL()
	}

	token, err := relay.IssueToken(cfg.RelayJWTSecret, *userID, *elevated, lifetime)
	if err != nil {
		log.Fatalf("token signing failed: %v", err)
	}
	fmt.Println(token)
}

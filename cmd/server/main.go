package main

import (
	"log"
	"net/http"

	"stage-manager/internal/config"
	"stage-manager/internal/persistence"
	"stage-manager/internal/relay"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()
	if cfg.RelayJWTSecret == "" {
		log.Fatal("RELAY_JWT_SECRET is not set")
	}

	store, closeStore, err := persistence.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	addr := ":" + cfg.Port
	srv := relay.New(store, cfg)
	log.Printf("stage relay listening on %s store=%s", addr, cfg.StoreBackend)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}

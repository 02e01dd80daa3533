package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"stage-manager/internal/config"
	"stage-manager/internal/persistence"
	"stage-manager/internal/stage"
)

func main() {
	filePath := flag.String("file", "objects.json", "path to a JSON array of serialized objects")
	scope := flag.String("scope", string(stage.ScopeScene), "target scope: global, scene or user")
	owner := flag.String("owner", "", "scene id or user id (empty for global)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	objects, err := readObjects(*filePath)
	if err != nil {
		log.Fatalf("failed to read objects: %v", err)
	}

	store, closeStore, err := persistence.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()

	key := persistence.Key{Scope: stage.Scope(*scope), Owner: *owner}
	count, err := persistence.Import(context.Background(), store, stage.DefaultRegistry(), key, objects)
	if err != nil {
		log.Fatalf("import failed: %v", err)
	}
	log.Printf("stage objects imported key=%s count=%d", key, count)
}

func readObjects(path string) ([]stage.Serialized, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var objects []stage.Serialized
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

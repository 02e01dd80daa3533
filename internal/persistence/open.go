package persistence

import (
	"fmt"
	"log"

	"stage-manager/internal/config"
	"stage-manager/internal/db"
)

// Open builds the store named by cfg.StoreBackend. The returned func
// releases any connection the store holds.
func Open(cfg config.Config) (Store, func(), error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		conn, err := db.Open()
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.ConfigurePool(conn, cfg); err != nil {
			return nil, nil, fmt.Errorf("database pool setup failed: %w", err)
		}
		if cfg.DBAutoMigrate {
			if err := db.Migrate(conn); err != nil {
				return nil, nil, fmt.Errorf("database migration failed: %w", err)
			}
		}
		closeFn := func() {
			if sqlDB, err := conn.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		log.Printf("object store ready backend=%s", cfg.StoreBackend)
		return NewGormStore(conn), closeFn, nil
	case config.StoreValkey:
		store, err := NewValkeyStore(cfg.ValkeyAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("valkey connection failed: %w", err)
		}
		log.Printf("object store ready backend=%s addr=%s", cfg.StoreBackend, cfg.ValkeyAddr)
		return store, store.Close, nil
	default:
		log.Printf("object store ready backend=%s", config.StoreMemory)
		return NewMemoryStore(), func() {}, nil
	}
}

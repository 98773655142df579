package store

import (
	"crypto/sha256"
	"fmt"

	"github.com/chainapsis/oko-tss/pkg/config"
	"github.com/chainapsis/oko-tss/pkg/kvstore"
)

// NewStore builds the node store for the configured backend: Postgres for
// multi-box deployments, embedded Badger for single-box ones.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.StorageType {
	case "postgres":
		if cfg.Postgres == nil || cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("storage_type postgres requires postgres.dsn")
		}
		return NewGormStore(cfg.Postgres.DSN)
	case "badger":
		if cfg.DBPassword == "" {
			return nil, fmt.Errorf("storage_type badger requires db_password")
		}
		key := sha256.Sum256([]byte(cfg.DBPassword))
		kv, err := kvstore.NewBadgerStore(kvstore.BadgerConfig{
			DBPath:        cfg.DBPath,
			EncryptionKey: key[:],
		})
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return NewKVStore(kv), nil
	default:
		return nil, fmt.Errorf("unsupported storage type %q", cfg.StorageType)
	}
}

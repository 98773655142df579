package kvstore

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/chainapsis/oko-tss/pkg/logger"
)

var ErrEncryptionKeyNotProvided = errors.New("encryption key not provided")

// BadgerStore is a Store implementation backed by an encrypted BadgerDB.
type BadgerStore struct {
	DB *badger.DB
}

type BadgerConfig struct {
	EncryptionKey []byte
	DBPath        string
}

// NewBadgerStore opens the database at the configured path. An encryption key
// is mandatory: key shares never touch disk unencrypted even below the
// gateway layer.
func NewBadgerStore(config BadgerConfig) (*BadgerStore, error) {
	if len(config.EncryptionKey) == 0 {
		return nil, ErrEncryptionKeyNotProvided
	}

	opts := badger.DefaultOptions(config.DBPath).
		WithCompression(options.ZSTD).
		WithEncryptionKey(config.EncryptionKey).
		WithIndexCacheSize(16 << 20).
		WithBlockCacheSize(32 << 20).
		WithSyncWrites(true).
		WithVerifyValueChecksum(true). // surface value-log corruption on read instead of masking it
		WithCompactL0OnClose(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	logger.Info("Connected to BadgerDB", "path", config.DBPath)

	return &BadgerStore{DB: db}, nil
}

// Put stores a key-value pair.
func (b *BadgerStore) Put(key string, value []byte) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get retrieves the value associated with a key.
func (b *BadgerStore) Get(key string) ([]byte, error) {
	var result []byte
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			result = append([]byte{}, val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return result, err
}

// Keys lists all keys under a prefix, values not prefetched.
func (b *BadgerStore) Keys(prefix string) ([]string, error) {
	var keys []string
	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})

	return keys, err
}

// Delete removes a key-value pair.
func (b *BadgerStore) Delete(key string) error {
	return b.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Close closes the underlying database.
func (b *BadgerStore) Close() error {
	return b.DB.Close()
}

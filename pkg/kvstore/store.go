package kvstore

import "errors"

// ErrKeyNotFound is returned by Get when no value exists under the key.
var ErrKeyNotFound = errors.New("key not found")

// Store is a small durable key/value abstraction used by the key-share node
// when it runs without Postgres (single-box deployments).
type Store interface {
	Put(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
	Keys(prefix string) ([]string, error)
	Close() error
}

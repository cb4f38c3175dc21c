package backends

import (
	"errors"

	"github.com/botirk38/llmtopics/backends/inmemory"
	"github.com/botirk38/llmtopics/backends/remote"
	"github.com/botirk38/llmtopics/types"
)

var ErrUnsupportedBackend = errors.New("unsupported backend type")

// NewBackend creates a response cache backend of the specified type
func NewBackend(backendType types.BackendType, config types.BackendConfig) (types.CacheBackend, error) {
	switch backendType {
	case types.BackendLRU:
		return NewLRUBackend(config)
	case types.BackendRedis:
		return NewRedisBackend(config)
	default:
		return nil, ErrUnsupportedBackend
	}
}

// NewLRUBackend creates a new LRU backend
func NewLRUBackend(config types.BackendConfig) (types.CacheBackend, error) {
	return inmemory.NewLRUBackend(config)
}

// NewRedisBackend creates a new Redis backend
func NewRedisBackend(config types.BackendConfig) (types.CacheBackend, error) {
	return remote.NewRedisBackend(config)
}

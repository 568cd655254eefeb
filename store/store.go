// Package store holds the step records of runs. Records are grouped under a
// prefix, one per run, and keyed by node id.
package store

import "context"

type Store interface {
	/**
	 * Get returns nil without error when prefix + key does not exist
	 */
	Get(ctx context.Context, prefix, key string) ([]byte, error)
	Set(ctx context.Context, prefix, key string, value []byte) error
	/**
	 * Remove a prefix and key
	 * remove an unexists prefix + key would NOT return error
	 */
	Remove(ctx context.Context, prefix, key string) error

	/**
	 * List calls iterator with every key under prefix in key order,
	 * stopping when iterator returns false.
	 */
	List(ctx context.Context, prefix string, iterator func(key string) bool) error
}

// Close closes s when it holds resources, such as a database connection.
func Close(s Store) error {
	if closer, ok := s.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

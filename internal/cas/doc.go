// Package cas provides the content-addressed store behind the device registry.
//
// Every entry is keyed by the lowercase hex SHA-256 digest of its UTF-8
// content. The store is append-only: writing the same content twice yields
// the same hash and a single row, and entries are never updated or deleted.
// Device records point into the store by hash, which makes the raw discovery
// payloads the durable source of truth that the registry can be rebuilt from.
//
// Usage:
//
//	store := cas.NewStore(db.DB)
//	hash, err := store.Put(ctx, `sys=feather-a id=cp-001 ip=192.168.0.10`)
//	entries, err := store.Get(ctx, "@"+hash[:8])
package cas

package store

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/blake2b"

	"github.com/syssam/consql"
	"github.com/syssam/consql/schema"
	"github.com/syssam/consql/sqlt"
)

// cacheKey identifies the rows of a rendered list statement.
func cacheKey(sc *schema.Schema, st sqlt.Statement) (consql.CacheKey, error) {
	args, err := msgpack.Marshal(st.Args)
	if err != nil {
		return consql.CacheKey{}, fmt.Errorf("store: encode cache key: %w", err)
	}
	h, _ := blake2b.New256(nil)
	h.Write([]byte(st.Query))
	h.Write([]byte{0})
	h.Write(args)
	return consql.CacheKey{
		Table:     sc.Table().Name,
		Statement: sqlt.List,
		Digest:    hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// cached returns the rows of st from the cache, querying on a miss.
// Concurrent misses of the same key share one query.
func (s *Store) cached(ctx context.Context, sc *schema.Schema, st sqlt.Statement) ([]map[string]any, error) {
	key, err := cacheKey(sc, st)
	if err != nil {
		return nil, err
	}
	k := key.String()
	if b, err := s.cache.Get(ctx, k); err != nil {
		s.logger.WarnContext(ctx, "cache get failed", "key", k, "error", err)
	} else if b != nil {
		rows, err := decodeRows(b)
		if err == nil {
			return rows, nil
		}
		s.logger.WarnContext(ctx, "cache entry dropped", "key", k, "error", err)
		_ = s.cache.Delete(ctx, k)
	}
	v, err, shared := s.group.Do(k, func() (any, error) {
		// Waiters share this fill; one caller cancelling must not fail them all.
		ctx := context.WithoutCancel(ctx)
		rows, err := query(ctx, s.exec, st)
		if err != nil {
			return nil, err
		}
		b, err := msgpack.Marshal(rows)
		if err != nil {
			return nil, fmt.Errorf("store: encode rows: %w", err)
		}
		if err := s.cache.Set(ctx, k, b, s.ttl); err != nil {
			s.logger.WarnContext(ctx, "cache set failed", "key", k, "error", err)
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "cache fill shared", slog.String("key", k))
	}
	// Every caller decodes its own copy of the shared rows.
	return decodeRows(v.([]byte))
}

func decodeRows(b []byte) ([]map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("store: decode rows: %w", err)
	}
	return rows, nil
}

// Invalidate drops every cached listing of the table of sc. Writes made
// through the store invalidate on their own; call it after committing a
// transaction passed with Using that did not come from Store.Tx.
func (s *Store) Invalidate(ctx context.Context, sc *schema.Schema) {
	if s.cache == nil {
		return
	}
	prefix := consql.CacheKey{Table: sc.Table().Name}.Prefix()
	if err := s.cache.DeletePrefix(ctx, prefix); err != nil {
		s.logger.WarnContext(ctx, "cache invalidation failed", "prefix", prefix, "error", err)
	}
}

// written invalidates the table of sc after a save or remove. A write in a
// Tx of this store invalidates again once the Tx commits, since listings
// between the write and the commit still see the old rows.
func (s *Store) written(ctx context.Context, c *call, sc *schema.Schema) {
	s.Invalidate(ctx, sc)
	if tx, ok := c.exec.(*Tx); ok && tx.store == s {
		tx.touch(sc)
	}
}

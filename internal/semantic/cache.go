package semantic

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ent0n29/onesky/internal/llm"
)

const cacheKeyPrefix = "emb:"

// OpenCache opens the embedding cache database. An empty dir keeps it in
// memory.
func OpenCache(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return db, nil
}

// CachedEmbedder memoises query embeddings keyed by model and text.
type CachedEmbedder struct {
	inner llm.Embedder
	db    *badger.DB
	model string
	ttl   time.Duration
}

func NewCachedEmbedder(inner llm.Embedder, db *badger.DB, model string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, db: db, model: model, ttl: ttl}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		return vec, err
	}
	// A failed write only costs a later recompute.
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, encodeVector(vec)).WithTTL(c.ttl))
	})
	return vec, nil
}

func (c *CachedEmbedder) lookup(key []byte) ([]float32, bool) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			vec = decodeVector(val)
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return vec, len(vec) > 0
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return append([]byte(cacheKeyPrefix), sum[:]...)
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	if len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mastrvec/internal/db"
	"github.com/kailas-cloud/mastrvec/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Namespace scopes cache entries. Vectors from another model or dimension are never served.
type Namespace struct {
	Model string
	Dim   int
}

func (n Namespace) prefix() string {
	return cacheKeyPrefix + n.Model + ":" + strconv.Itoa(n.Dim) + ":"
}

// CachedEmbedder caches provider embeddings in a key-value store.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      store
	ns         Namespace
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	inner domain.Embedder,
	s store,
	ns Namespace,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		ns:         ns,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached vector (TotalTokens 0) or the provider's result.
// Only vectors of the namespace dimension are written back.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)

	if vec, ok := c.lookup(ctx, key); ok {
		c.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}
	c.count("miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	if c.fits(result.Embedding) {
		if err := c.store.Set(ctx, key, encodeVector(result.Embedding)); err != nil {
			c.logger.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return result, nil
}

func (c *CachedEmbedder) count(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return c.ns.prefix() + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) fits(vec []float32) bool {
	return len(vec) > 0 && (c.ns.Dim <= 0 || len(vec) == c.ns.Dim)
}

func (c *CachedEmbedder) lookup(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, false
	case err != nil:
		c.logger.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	vec, err := decodeVector(data)
	if err != nil {
		c.logger.Warn("Dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !c.fits(vec) {
		c.logger.Debug("Cached vector has wrong dimension",
			zap.String("key", key), zap.Int("got", len(vec)), zap.Int("want", c.ns.Dim))
		return nil, false
	}
	return vec, true
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("cache entry of %d bytes is not a float32 vector", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

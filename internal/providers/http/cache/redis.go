package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

// Redis is a store shared by every process pointed at the same server.
// Bodies are zstd compressed and keys are BLAKE3 digests of the request key.
type Redis struct {
	client     redis.Cmdable
	prefix     string
	defaultTTL time.Duration
	encoder    *zstd.Encoder
	decoder    *zstd.Decoder
	closer     func() error
}

// NewRedis creates a store on client. Keys are namespaced with prefix.
func NewRedis(client redis.Cmdable, prefix string, defaultTTL time.Duration) (*Redis, error) {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	r := &Redis{
		client:     client,
		prefix:     prefix,
		defaultTTL: defaultTTL,
		encoder:    encoder,
		decoder:    decoder,
	}
	if c, ok := client.(interface{ Close() error }); ok {
		r.closer = c.Close
	}
	return r, nil
}

func (r *Redis) key(key string) string {
	sum := blake3.Sum256([]byte(key))
	return r.prefix + hex.EncodeToString(sum[:])
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := sonic.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("decode cache entry: %w", err)
	}
	body, err := r.decoder.DecodeAll(e.Body, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress cache entry: %w", err)
	}
	e.Body = body
	return &e, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	wire := *e
	wire.Body = r.encoder.EncodeAll(e.Body, nil)

	raw, err := sonic.Marshal(&wire)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DefaultExpiration implements Store.
func (r *Redis) DefaultExpiration() time.Duration {
	return r.defaultTTL
}

// Close releases the codecs and the client when the store owns it.
func (r *Redis) Close() error {
	r.encoder.Close()
	r.decoder.Close()
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

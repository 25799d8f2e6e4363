// Package redisstore is a Redis-backed vectorstore.Store. Documents are kept
// as JSON values under a key prefix and queried by brute-force cosine scan,
// which is adequate for the per-campaign corpus sizes this core handles.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seoflow-ai/seoflow/pkg/vectorstore"
)

const defaultPrefix = "seoflow:ltm:"

// Config holds Redis connection settings.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr"`
	// Password is optional.
	Password string `yaml:"password"`
	// DB is the Redis database number.
	DB int `yaml:"db"`
	// Prefix namespaces all keys (default "seoflow:ltm:").
	Prefix string `yaml:"prefix"`
	// TTL expires documents after the given duration (0 = keep forever).
	TTL time.Duration `yaml:"ttl"`
}

// Store is a Redis-backed vector store.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis and returns a store. The connection is verified with
// a ping so a misconfigured address fails at startup, not first query.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, &vectorstore.StoreError{Backend: "redis", Op: "connect", Err: err}
	}

	return &Store{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// NewWithClient wraps an existing client. Used by tests with miniredis.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Upsert implements vectorstore.Store.
func (s *Store) Upsert(ctx context.Context, docs ...vectorstore.Document) error {
	for _, doc := range docs {
		if err := vectorstore.ValidateDocument(doc); err != nil {
			return &vectorstore.StoreError{Backend: "redis", Op: "upsert", Err: err}
		}
	}

	pipe := s.client.Pipeline()
	for _, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return &vectorstore.StoreError{Backend: "redis", Op: "upsert", Err: err}
		}
		pipe.Set(ctx, s.prefix+doc.ID, raw, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &vectorstore.StoreError{Backend: "redis", Op: "upsert", Err: err}
	}
	return nil
}

// Query implements vectorstore.Store.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, nil
	}

	var matches []vectorstore.Match
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between scan and get
			}
			return nil, &vectorstore.StoreError{Backend: "redis", Op: "query", Err: err}
		}
		var doc vectorstore.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, &vectorstore.StoreError{Backend: "redis", Op: "query", Err: err}
		}
		matches = append(matches, vectorstore.Match{
			Document: doc,
			Score:    vectorstore.CosineSimilarity(embedding, doc.Embedding),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, &vectorstore.StoreError{Backend: "redis", Op: "query", Err: err}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

// Close implements vectorstore.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

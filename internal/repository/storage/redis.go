package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
)

const maxTxRetries = 16

var ErrTooManyConflicts = errors.New("too many concurrent writes to the same document")

// RedisOptions - connection settings for the Redis tree.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// TTL expires idle documents. Zero keeps them until removed.
	TTL time.Duration
}

// RedisTree stores every document as one JSON string.
// Writes are optimistic WATCH/MULTI transactions that also bump a revision and PUBLISH the new document.
type RedisTree struct {
	logger *slog.Logger
	client *redis.Client

	prefix string
	ttl    time.Duration
}

type envelope struct {
	Revision int64 `json:"rev"`
	Data     any   `json:"data"`
}

// NewRedisClient - connects to Redis and checks the connection.
func NewRedisClient(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	_, err := conn.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", mapRedisError(err))
	}

	return conn, nil
}

func NewRedisTree(logger *slog.Logger, client *redis.Client, keyPrefix string, ttl time.Duration) *RedisTree {
	return &RedisTree{
		logger: logger.With("component", "redis-tree"),
		client: client,

		prefix: keyPrefix,
		ttl:    ttl,
	}
}

func (that *RedisTree) dataKey(docKey string) string {
	return that.prefix + docKey
}

func (that *RedisTree) revisionKey(docKey string) string {
	return that.prefix + "rev:" + docKey
}

func (that *RedisTree) channel(docKey string) string {
	return that.prefix + "events:" + docKey
}

func (that *RedisTree) Set(ctx context.Context, path string, value any) error {
	docKey, fields, err := splitPath(path)
	if err != nil {
		return err
	}

	return that.write(ctx, docKey, func(doc any, stamp func() any) (any, error) {
		normalized, err := normalize(value, stamp)
		if err != nil {
			return nil, err
		}
		return withValue(doc, fields, normalized), nil
	})
}

func (that *RedisTree) Update(ctx context.Context, path string, children map[string]any) error {
	docKey, fields, err := splitPath(path)
	if err != nil {
		return err
	}

	return that.write(ctx, docKey, func(doc any, stamp func() any) (any, error) {
		normalized := make(map[string]any, len(children))
		for key, child := range children {
			value, err := normalize(child, stamp)
			if err != nil {
				return nil, fmt.Errorf("child %s: %w", key, err)
			}
			normalized[key] = value
		}
		return applyUpdate(doc, fields, normalized), nil
	})
}

func (that *RedisTree) Get(ctx context.Context, path string, dst any) (bool, error) {
	docKey, fields, err := splitPath(path)
	if err != nil {
		return false, err
	}

	doc, _, err := that.read(ctx, docKey)
	if err != nil {
		return false, err
	}

	return decodeInto(valueAt(doc, fields), dst)
}

func (that *RedisTree) Remove(ctx context.Context, path string) error {
	return that.Set(ctx, path, nil)
}

// Subscribe - waits for the SUBSCRIBE confirmation before reading the current value, so no write is lost in between.
func (that *RedisTree) Subscribe(ctx context.Context, path string, handler func(raw []byte)) (Subscription, error) {
	log := that.logger.With("method", "Subscribe", "path", path)

	docKey, fields, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	pubsub := that.client.Subscribe(ctx, that.channel(docKey))
	if _, err = pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, mapRedisError(err))
	}

	sub := newSubscription(fields, handler, func() {
		if closeErr := pubsub.Close(); closeErr != nil {
			log.Debug("failed to close pubsub", "error", closeErr)
		}
	})

	messages := pubsub.Channel()

	doc, revision, err := that.read(ctx, docKey)
	if err != nil {
		sub.Close()
		return nil, err
	}
	sub.push(revision, doc)

	go func() {
		for msg := range messages {
			var event envelope
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error("failed to decode change event", "error", err)
				continue
			}
			sub.push(event.Revision, event.Data)
		}
	}()

	return sub, nil
}

func (that *RedisTree) Ping(ctx context.Context) error {
	if err := that.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", mapRedisError(err))
	}

	return nil
}

func (that *RedisTree) Close() error {
	return that.client.Close()
}

// read - returns the document and its revision in one MULTI.
func (that *RedisTree) read(ctx context.Context, docKey string) (any, int64, error) {
	var dataCmd, revisionCmd *redis.StringCmd

	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		dataCmd = pipe.Get(ctx, that.dataKey(docKey))
		revisionCmd = pipe.Get(ctx, that.revisionKey(docKey))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to read %s: %w", docKey, mapRedisError(err))
	}

	return decodeDocument(dataCmd, revisionCmd)
}

// write - applies mutate under WATCH and retries when another client wrote the document first.
func (that *RedisTree) write(ctx context.Context, docKey string, mutate func(doc any, stamp func() any) (any, error)) error {
	dataKey := that.dataKey(docKey)
	revisionKey := that.revisionKey(docKey)

	txFn := func(tx *redis.Tx) error {
		doc, revision, err := decodeDocument(tx.Get(ctx, dataKey), tx.Get(ctx, revisionKey))
		if err != nil {
			return err
		}

		serverTime, err := tx.Time(ctx).Result()
		if err != nil {
			return fmt.Errorf("failed to read server time: %w", err)
		}

		updated, err := mutate(doc, func() any { return serverTime.UnixMilli() })
		if err != nil {
			return err
		}

		revision++
		event := encode(envelope{Revision: revision, Data: updated})

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if updated == nil {
				pipe.Del(ctx, dataKey)
			} else {
				pipe.Set(ctx, dataKey, encode(updated), that.ttl)
			}
			pipe.Set(ctx, revisionKey, revision, 2*that.ttl)
			pipe.Publish(ctx, that.channel(docKey), event)
			return nil
		})

		return err
	}

	for range maxTxRetries {
		err := that.client.Watch(ctx, txFn, dataKey, revisionKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", docKey, mapRedisError(err))
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrTooManyConflicts, docKey)
}

func decodeDocument(dataCmd, revisionCmd *redis.StringCmd) (any, int64, error) {
	var doc any

	raw, err := dataCmd.Bytes()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, 0, fmt.Errorf("failed to get document: %w", mapRedisError(err))
	default:
		if err = json.Unmarshal(raw, &doc); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal document: %w", err)
		}
	}

	revision, err := revisionCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, fmt.Errorf("failed to get revision: %w", mapRedisError(err))
	}

	return doc, revision, nil
}

// mapRedisError - ACL and auth failures become apperror.ErrPermissionDenied.
func mapRedisError(err error) error {
	if err == nil {
		return nil
	}

	message := err.Error()
	for _, marker := range []string{"NOPERM", "NOAUTH", "WRONGPASS"} {
		if strings.Contains(message, marker) {
			return fmt.Errorf("%w: %w", apperror.ErrPermissionDenied, err)
		}
	}

	return err
}

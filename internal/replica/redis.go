package replica

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	opTimeout     = 5 * time.Second
	maxTxRetries  = 8
	changesSuffix = ":changes"
)

// RedisStore implements Store on Redis: one hash per channel, WATCH/MULTI for
// Update, and a pub/sub channel carrying every change to all instances.
// Local subscribers are notified from the pub/sub feed only, so a write reaches
// this instance exactly once, the same way it reaches the others.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[Channel]map[int]func(Change)
	nextSub int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRedisStore creates a store whose keys live under prefix (e.g. "auditorium:main").
func NewRedisStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
		subs:   make(map[Channel]map[int]func(Change)),
	}
}

func (r *RedisStore) key(ch Channel) string {
	return r.prefix + ":ch:" + strconv.Itoa(int(ch))
}

func (r *RedisStore) changes() string {
	return r.prefix + changesSuffix
}

func (r *RedisStore) Get(ctx context.Context, ch Channel, id string) ([]byte, error) {
	b, err := r.client.HGet(ctx, r.key(ch), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("hget: %w", err)
	}
	return b, nil
}

func (r *RedisStore) List(ctx context.Context, ch Channel) ([]Entry, error) {
	m, err := r.client.HGetAll(ctx, r.key(ch)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}
	out := make([]Entry, 0, len(m))
	for id, v := range m {
		out = append(out, Entry{ID: id, Data: []byte(v)})
	}
	sortEntries(out)
	return out, nil
}

func (r *RedisStore) Put(ctx context.Context, ch Channel, id string, data []byte) error {
	body, err := json.Marshal(Change{Channel: ch, ID: id, Data: data})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key(ch), id, data)
		pipe.Publish(ctx, r.changes(), body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

func (r *RedisStore) Update(ctx context.Context, ch Channel, id string, fn UpdateFunc) error {
	key := r.key(ch)
	txf := func(tx *redis.Tx) error {
		old, err := tx.HGet(ctx, key, id).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists, err = false, nil
		}
		if err != nil {
			return err
		}
		next, err := fn(old, exists)
		if err != nil {
			return err
		}
		body, err := json.Marshal(Change{Channel: ch, ID: id, Data: next})
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, next)
			pipe.Publish(ctx, r.changes(), body)
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update %s/%d: too many concurrent writers", id, ch)
}

func (r *RedisStore) Delete(ctx context.Context, ch Channel, id string) error {
	body, err := json.Marshal(Change{Channel: ch, ID: id, Deleted: true})
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, r.key(ch), id)
		pipe.Publish(ctx, r.changes(), body)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteAll(ctx context.Context, ch Channel) error {
	ids, err := r.client.HKeys(ctx, r.key(ch)).Result()
	if err != nil {
		return fmt.Errorf("hkeys: %w", err)
	}
	for _, id := range ids {
		if err := r.Delete(ctx, ch, id); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers fn for changes on ch. The first subscription starts the
// shared pub/sub reader.
func (r *RedisStore) Subscribe(ch Channel, fn func(Change)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		if err := r.start(); err != nil {
			r.logger.Error("replica subscribe failed", zap.Error(err))
		}
	}
	if r.subs[ch] == nil {
		r.subs[ch] = make(map[int]func(Change))
	}
	id := r.nextSub
	r.nextSub++
	r.subs[ch][id] = fn
	return func() {
		r.mu.Lock()
		delete(r.subs[ch], id)
		r.mu.Unlock()
	}
}

// start must be called with r.mu held.
func (r *RedisStore) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, r.changes())
	recvCtx, recvCancel := context.WithTimeout(ctx, opTimeout)
	defer recvCancel()
	if _, err := pubsub.Receive(recvCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	r.cancel = cancel
	r.done = make(chan struct{})
	msgs := pubsub.Channel()
	go func() {
		defer close(r.done)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					r.logger.Warn("invalid replica change", zap.Error(err))
					continue
				}
				r.dispatch(c)
			}
		}
	}()
	return nil
}

func (r *RedisStore) dispatch(c Change) {
	r.mu.Lock()
	fns := make([]func(Change), 0, len(r.subs[c.Channel]))
	for _, fn := range r.subs[c.Channel] {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// Close stops the pub/sub reader.
func (r *RedisStore) Close() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

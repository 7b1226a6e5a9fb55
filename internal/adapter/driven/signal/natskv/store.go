// Package natskv backs the SignalStore contract with a NATS JetStream
// key-value bucket. KV put/get/delete and KV watchers map one-to-one onto
// the document put/get/delete/watch contract.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/bmsc/comms/internal/core/port"
)

type Store struct {
	kv nats.KeyValue
}

// New binds to the bucket, creating it when absent.
func New(nc *nats.Conn, bucket string) (*Store, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  bucket,
			History: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind kv bucket %q: %w", bucket, err)
	}
	return &Store{kv: kv}, nil
}

// Slash-separated document paths become dot-separated KV keys.
func toKey(path string) string {
	return strings.ReplaceAll(strings.Trim(path, "/"), "/", ".")
}

func toPath(key string) string {
	return strings.ReplaceAll(key, ".", "/")
}

func (s *Store) Put(ctx context.Context, path string, doc []byte) error {
	if _, err := s.kv.Put(toKey(path), doc); err != nil {
		return fmt.Errorf("kv put %s: %w", path, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	entry, err := s.kv.Get(toKey(path))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil, port.ErrNoDocument
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s: %w", path, err)
	}
	return entry.Value(), nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	err := s.kv.Delete(toKey(path))
	if err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("kv delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	keys, err := s.kv.Keys()
	if errors.Is(err, nats.ErrNoKeysFound) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv keys: %w", err)
	}

	keyPrefix := toKey(prefix)
	if keyPrefix != "" {
		keyPrefix += "."
	}
	out := make(map[string][]byte)
	for _, key := range keys {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		entry, err := s.kv.Get(key)
		if errors.Is(err, nats.ErrKeyNotFound) {
			continue // deleted between Keys and Get
		}
		if err != nil {
			return nil, fmt.Errorf("kv get %s: %w", key, err)
		}
		out[toPath(key)] = entry.Value()
	}
	return out, nil
}

func (s *Store) Watch(ctx context.Context, path string, fn port.WatchFunc) (port.CancelFunc, error) {
	return s.watch(ctx, toKey(path), fn)
}

func (s *Store) WatchPrefix(ctx context.Context, prefix string, fn port.WatchFunc) (port.CancelFunc, error) {
	return s.watch(ctx, toKey(prefix)+".>", fn)
}

func (s *Store) watch(ctx context.Context, pattern string, fn port.WatchFunc) (port.CancelFunc, error) {
	// UpdatesOnly: the watch contract reports changes from now on, not the
	// current snapshot.
	w, err := s.kv.Watch(pattern, nats.Context(ctx), nats.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("kv watch %s: %w", pattern, err)
	}

	quit := make(chan struct{})
	go func() {
		for {
			select {
			case <-quit:
				return
			case entry, ok := <-w.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue
				}
				ev := port.WatchEvent{Path: toPath(entry.Key())}
				switch entry.Operation() {
				case nats.KeyValuePut:
					ev.Op = port.OpPut
					ev.Doc = entry.Value()
				case nats.KeyValueDelete, nats.KeyValuePurge:
					ev.Op = port.OpDelete
				default:
					continue
				}
				fn(ev)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(quit)
			if err := w.Stop(); err != nil {
				log.Warn().Err(err).Str("pattern", pattern).Msg("Failed to stop KV watcher")
			}
		})
	}
	return cancel, nil
}

var _ port.SignalStore = (*Store)(nil)

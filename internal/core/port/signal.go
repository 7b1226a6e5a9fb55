package port

import (
	"context"
	"errors"
)

// ErrNoDocument is returned by Get when no document exists at the path.
// Delete never returns it: deleting an absent document is a success.
var ErrNoDocument = errors.New("no document at path")

type WatchOp int

const (
	OpPut WatchOp = iota
	OpDelete
)

// WatchEvent is delivered to a watch callback whenever the watched document
// (or any document under the watched prefix) changes. Doc is nil for OpDelete.
type WatchEvent struct {
	Path string
	Op   WatchOp
	Doc  []byte
}

type WatchFunc func(ev WatchEvent)

// CancelFunc stops delivery for one watch registration. Safe to call more
// than once; after it returns no further callbacks are delivered.
type CancelFunc func()

// SignalStore is the document store used for call signaling records and chat
// messages. Documents are opaque JSON; paths are slash-separated.
//
// Put overwrites, Delete is idempotent, and Watch keeps delivering until the
// returned CancelFunc is called or ctx is done. No ordering is guaranteed
// across independent watches.
type SignalStore interface {
	Put(ctx context.Context, path string, doc []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) (map[string][]byte, error)
	Watch(ctx context.Context, path string, fn WatchFunc) (CancelFunc, error)
	WatchPrefix(ctx context.Context, prefix string, fn WatchFunc) (CancelFunc, error)
}

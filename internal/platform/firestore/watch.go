package firestore

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Subscription is a live listener on a collection query. Close stops it; further calls are no-ops.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

// Close stops the listener and waits for its goroutine to exit. No handler runs after Close returns,
// so Close must not be called from inside the handler.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Done is closed when the listener has stopped, whether by Close, context cancellation or a
// terminal backend error.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports the terminal backend error, or nil when the listener stopped normally.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SnapshotHandler receives the complete, decoded result set every time the query results change.
type SnapshotHandler[T any] func(docs []Document[T])

// Watch starts a realtime listener. handler receives the full result set on the initial snapshot and
// after every change; onError (optional) receives decode failures and the terminal listen error.
func (r *BaseRepository[T]) Watch(ctx context.Context, build QueryBuilder, handler SnapshotHandler[T], onError func(error)) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("firestore: snapshot handler is required")
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}
	if onError == nil {
		onError = func(error) {}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		iter := query.Snapshots(watchCtx)
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if err != nil {
				if watchCtx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				wrapped := WrapError(r.op("watch"), err)
				sub.mu.Lock()
				sub.err = wrapped
				sub.mu.Unlock()
				onError(wrapped)
				return
			}
			snapshots, err := snap.Documents.GetAll()
			if err != nil {
				onError(WrapError(r.op("watch"), err))
				continue
			}
			docs, err := r.decodeAll(watchCtx, snapshots)
			if err != nil {
				onError(err)
				continue
			}
			if watchCtx.Err() != nil {
				return
			}
			handler(docs)
		}
	}()

	return sub, nil
}

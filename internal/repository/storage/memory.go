package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
)

// MemoryTree keeps documents in process. Used for single process play and tests.
type MemoryTree struct {
	clock clockwork.Clock

	mu        sync.Mutex
	docs      map[string]any
	revisions map[string]int64
	subs      map[string]map[*subscription]struct{}
	lastStamp int64
}

func NewMemoryTree(clock clockwork.Clock) *MemoryTree {
	return &MemoryTree{
		clock:     clock,
		docs:      make(map[string]any),
		revisions: make(map[string]int64),
		subs:      make(map[string]map[*subscription]struct{}),
	}
}

// now - strictly increasing unix milliseconds, so join order is never ambiguous.
func (that *MemoryTree) now() any {
	stamp := that.clock.Now().UnixMilli()
	if stamp <= that.lastStamp {
		stamp = that.lastStamp + 1
	}
	that.lastStamp = stamp

	return stamp
}

func (that *MemoryTree) Set(ctx context.Context, path string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docKey, fields, err := splitPath(path)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	normalized, err := normalize(value, that.now)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}

	that.write(docKey, withValue(that.docs[docKey], fields, normalized))

	return nil
}

func (that *MemoryTree) Update(ctx context.Context, path string, children map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	docKey, fields, err := splitPath(path)
	if err != nil {
		return err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	normalized := make(map[string]any, len(children))
	for key, child := range children {
		if normalized[key], err = normalize(child, that.now); err != nil {
			return fmt.Errorf("failed to update %s/%s: %w", path, key, err)
		}
	}

	that.write(docKey, applyUpdate(that.docs[docKey], fields, normalized))

	return nil
}

func (that *MemoryTree) Get(ctx context.Context, path string, dst any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	docKey, fields, err := splitPath(path)
	if err != nil {
		return false, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return decodeInto(valueAt(that.docs[docKey], fields), dst)
}

func (that *MemoryTree) Remove(ctx context.Context, path string) error {
	return that.Set(ctx, path, nil)
}

func (that *MemoryTree) Subscribe(ctx context.Context, path string, handler func(raw []byte)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docKey, fields, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	var sub *subscription
	sub = newSubscription(fields, handler, func() {
		that.mu.Lock()
		delete(that.subs[docKey], sub)
		that.mu.Unlock()
	})

	if that.subs[docKey] == nil {
		that.subs[docKey] = make(map[*subscription]struct{})
	}
	that.subs[docKey][sub] = struct{}{}

	sub.push(that.revisions[docKey], that.docs[docKey])

	return sub, nil
}

func (that *MemoryTree) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (that *MemoryTree) Close() error {
	that.mu.Lock()
	subs := that.subs
	that.subs = make(map[string]map[*subscription]struct{})
	that.mu.Unlock()

	for _, docSubs := range subs {
		for sub := range docSubs {
			sub.Close()
		}
	}

	return nil
}

// write - stores the document and notifies subscribers. Caller holds the lock.
func (that *MemoryTree) write(docKey string, doc any) {
	if doc == nil {
		delete(that.docs, docKey)
	} else {
		that.docs[docKey] = doc
	}

	that.revisions[docKey]++

	for sub := range that.subs[docKey] {
		sub.push(that.revisions[docKey], doc)
	}
}

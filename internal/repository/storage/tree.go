package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// documentDepth - number of leading path segments that address one stored document ("rooms/<code>").
const documentDepth = 2

var ErrInvalidPath = errors.New("invalid store path")

// Tree is a shared mutable JSON tree addressed by "/" separated paths.
// Writing null removes a value, empty objects vanish.
type Tree interface {
	// Set replaces the value at path.
	Set(ctx context.Context, path string, value any) error
	// Update replaces several children of path in one write.
	Update(ctx context.Context, path string, children map[string]any) error
	// Get reads the value at path once. found is false when nothing is stored there.
	Get(ctx context.Context, path string, dst any) (found bool, err error)
	// Remove deletes the value at path. Removing a missing value is not an error.
	Remove(ctx context.Context, path string) error
	// Subscribe delivers the full value at path (JSON null when absent) right away and after every change.
	Subscribe(ctx context.Context, path string, handler func(raw []byte)) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}

// Subscription stops a Subscribe. Close never waits for a running handler.
type Subscription interface {
	Close()
}

type serverTimestamp struct{}

// ServerTimestamp is replaced with the store clock (unix milliseconds) at write time.
var ServerTimestamp = serverTimestamp{} //nolint: gochecknoglobals // sentinel value

const serverValueKey = ".sv"

func (serverTimestamp) MarshalJSON() ([]byte, error) {
	return []byte(`{".sv":"timestamp"}`), nil
}

// splitPath - returns the document key and the field path inside the document.
func splitPath(path string) (string, []string, error) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < documentDepth {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}

	for _, segment := range segments {
		if segment == "" || strings.ContainsAny(segment, ".#$[]") {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}

	return strings.Join(segments[:documentDepth], "/"), segments[documentDepth:], nil
}

// normalize - converts any JSON-marshalable value to maps, slices and scalars.
// Server timestamps are replaced with whatever stamp returns.
func normalize(value any, stamp func() any) (any, error) {
	if value == nil {
		return nil, nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var generic any
	if err = json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return compact(resolveServerValues(generic, stamp)), nil
}

func resolveServerValues(value any, stamp func() any) any {
	object, ok := value.(map[string]any)
	if !ok {
		return value
	}

	if len(object) == 1 && object[serverValueKey] == "timestamp" {
		return stamp()
	}

	for key, child := range object {
		object[key] = resolveServerValues(child, stamp)
	}

	return object
}

// compact - drops null children and empty objects.
func compact(value any) any {
	object, ok := value.(map[string]any)
	if !ok {
		return value
	}

	for key, child := range object {
		child = compact(child)
		if child == nil {
			delete(object, key)
			continue
		}
		object[key] = child
	}

	if len(object) == 0 {
		return nil
	}

	return object
}

// valueAt - walks fields inside a document.
func valueAt(doc any, fields []string) any {
	current := doc
	for _, field := range fields {
		object, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = object[field]
	}

	return current
}

// withValue - returns the document with value placed at fields. A nil value removes the field.
func withValue(doc any, fields []string, value any) any {
	if len(fields) == 0 {
		return value
	}

	object, ok := doc.(map[string]any)
	if !ok {
		object = make(map[string]any)
	}

	object[fields[0]] = withValue(object[fields[0]], fields[1:], value)

	return compact(object)
}

// applyUpdate - places every child of update under fields.
func applyUpdate(doc any, fields []string, children map[string]any) any {
	for key, child := range children {
		childFields := append(append([]string(nil), fields...), strings.Split(strings.Trim(key, "/"), "/")...)
		doc = withValue(doc, childFields, child)
	}

	return doc
}

func encode(value any) []byte {
	raw, err := json.Marshal(value)
	if err != nil {
		return []byte("null")
	}

	return raw
}

// decodeInto - decodes a stored value into dst. Absent values report found=false.
func decodeInto(value any, dst any) (bool, error) {
	if value == nil {
		return false, nil
	}

	if dst == nil {
		return true, nil
	}

	if err := json.Unmarshal(encode(value), dst); err != nil {
		return true, fmt.Errorf("failed to decode stored value: %w", err)
	}

	return true, nil
}

// isWithin - reports whether one of the paths contains the other.
func isWithin(a, b []string) bool {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

// subscription delivers values to a handler on its own goroutine, in order, skipping repeats.
type subscription struct {
	fields  []string
	handler func(raw []byte)

	mu       sync.Mutex
	queue    [][]byte
	last     []byte
	revision int64

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newSubscription(fields []string, handler func(raw []byte), onClose func()) *subscription {
	sub := &subscription{
		fields:  fields,
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		onClose: onClose,
	}

	go sub.run()

	return sub
}

// push - queues the value at the subscribed fields of a document revision. Older revisions are ignored.
func (that *subscription) push(revision int64, doc any) {
	raw := encode(valueAt(doc, that.fields))

	that.mu.Lock()
	if revision > 0 && revision <= that.revision {
		that.mu.Unlock()
		return
	}
	if revision > 0 {
		that.revision = revision
	}
	if that.last != nil && bytes.Equal(that.last, raw) {
		that.mu.Unlock()
		return
	}
	that.last = raw
	that.queue = append(that.queue, raw)
	that.mu.Unlock()

	select {
	case that.wake <- struct{}{}:
	default:
	}
}

func (that *subscription) run() {
	for {
		select {
		case <-that.done:
			return
		case <-that.wake:
		}

		for {
			that.mu.Lock()
			if len(that.queue) == 0 {
				that.mu.Unlock()
				break
			}
			raw := that.queue[0]
			that.queue = that.queue[1:]
			that.mu.Unlock()

			select {
			case <-that.done:
				return
			default:
			}

			that.handler(raw)
		}
	}
}

func (that *subscription) Close() {
	that.closeOnce.Do(func() {
		close(that.done)
		if that.onClose != nil {
			that.onClose()
		}
	})
}

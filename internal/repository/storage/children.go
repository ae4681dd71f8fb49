package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// SubscribeChildren - calls handler for every child of path that was added, changed or removed.
// Removed children are delivered as JSON null. Children present at subscribe time count as added.
func SubscribeChildren(ctx context.Context, tree Tree, path string, handler func(key string, raw []byte)) (Subscription, error) {
	var (
		mu       sync.Mutex
		previous = make(map[string]json.RawMessage)
	)

	return tree.Subscribe(ctx, path, func(raw []byte) {
		current := make(map[string]json.RawMessage)
		if err := json.Unmarshal(raw, &current); err != nil || current == nil {
			current = make(map[string]json.RawMessage)
		}

		mu.Lock()
		changed := diffChildren(previous, current)
		previous = current
		mu.Unlock()

		for _, key := range changed {
			value, ok := current[key]
			if !ok {
				value = json.RawMessage("null")
			}
			handler(key, value)
		}
	})
}

func diffChildren(previous, current map[string]json.RawMessage) []string {
	var changed []string

	for key, value := range current {
		if old, ok := previous[key]; !ok || !bytes.Equal(old, value) {
			changed = append(changed, key)
		}
	}

	for key := range previous {
		if _, ok := current[key]; !ok {
			changed = append(changed, key)
		}
	}

	sort.Strings(changed)

	return changed
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rocketscienceinc/rps-online/internal/apperror"
)

const firestoreNamespace = "rps"

// FirestoreTree stores every document as one Firestore document under <collection>/rps/<segment>/<id>.
type FirestoreTree struct {
	logger     *slog.Logger
	client     *firestore.Client
	collection string
}

// NewFirestoreClient - the client is long lived, do not pass a context with timeout.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", mapFirestoreError(err))
	}

	return client, nil
}

func NewFirestoreTree(logger *slog.Logger, client *firestore.Client, collection string) *FirestoreTree {
	return &FirestoreTree{
		logger:     logger.With("component", "firestore-tree"),
		client:     client,
		collection: collection,
	}
}

func (that *FirestoreTree) docRef(docKey string) *firestore.DocumentRef {
	segments := strings.SplitN(docKey, "/", documentDepth)

	return that.client.Collection(that.collection).Doc(firestoreNamespace).Collection(segments[0]).Doc(segments[1])
}

func (that *FirestoreTree) Set(ctx context.Context, path string, value any) error {
	docKey, fields, err := splitPath(path)
	if err != nil {
		return err
	}

	normalized, err := normalize(value, serverTimestampSentinel)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}

	doc := that.docRef(docKey)

	if len(fields) == 0 {
		if normalized == nil {
			_, err = doc.Delete(ctx)
		} else {
			_, err = doc.Set(ctx, normalized)
		}
	} else {
		_, err = doc.Set(ctx, nestValue(fields, toFieldValue(normalized)), firestore.Merge(fields))
	}

	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, mapFirestoreError(err))
	}

	return nil
}

func (that *FirestoreTree) Update(ctx context.Context, path string, children map[string]any) error {
	docKey, fields, err := splitPath(path)
	if err != nil {
		return err
	}

	data := make(map[string]any)
	paths := make([]firestore.FieldPath, 0, len(children))

	for key, child := range children {
		normalized, err := normalize(child, serverTimestampSentinel)
		if err != nil {
			return fmt.Errorf("failed to update %s/%s: %w", path, key, err)
		}

		childPath := append(append([]string(nil), fields...), strings.Split(strings.Trim(key, "/"), "/")...)
		mergeNested(data, childPath, toFieldValue(normalized))
		paths = append(paths, childPath)
	}

	if len(paths) == 0 {
		return nil
	}

	if _, err = that.docRef(docKey).Set(ctx, data, firestore.Merge(paths...)); err != nil {
		return fmt.Errorf("failed to update %s: %w", path, mapFirestoreError(err))
	}

	return nil
}

func (that *FirestoreTree) Get(ctx context.Context, path string, dst any) (bool, error) {
	docKey, fields, err := splitPath(path)
	if err != nil {
		return false, err
	}

	snapshot, err := that.docRef(docKey).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s: %w", path, mapFirestoreError(err))
	}

	return decodeInto(valueAt(documentData(snapshot), fields), dst)
}

func (that *FirestoreTree) Remove(ctx context.Context, path string) error {
	return that.Set(ctx, path, nil)
}

// Subscribe - the first snapshot from the listener is the current value.
func (that *FirestoreTree) Subscribe(ctx context.Context, path string, handler func(raw []byte)) (Subscription, error) {
	log := that.logger.With("method", "Subscribe", "path", path)

	docKey, fields, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	iter := that.docRef(docKey).Snapshots(listenCtx)

	sub := newSubscription(fields, handler, func() {
		cancel()
		iter.Stop()
	})

	go func() {
		var revision int64
		for {
			snapshot, err := iter.Next()
			if err != nil {
				if listenCtx.Err() == nil && status.Code(err) != codes.Canceled {
					log.Error("snapshot listener stopped", "error", mapFirestoreError(err))
				}
				return
			}

			revision++
			sub.push(revision, documentData(snapshot))
		}
	}()

	return sub, nil
}

func (that *FirestoreTree) Ping(ctx context.Context) error {
	_, err := that.client.Collection(that.collection).Doc(firestoreNamespace).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore ping failed: %w", mapFirestoreError(err))
	}

	return nil
}

func (that *FirestoreTree) Close() error {
	return that.client.Close()
}

func serverTimestampSentinel() any {
	return firestore.ServerTimestamp
}

// toFieldValue - a nil merge value deletes the field.
func toFieldValue(value any) any {
	if value == nil {
		return firestore.Delete
	}

	return value
}

func nestValue(fields []string, value any) map[string]any {
	root := make(map[string]any)
	mergeNested(root, fields, value)

	return root
}

func mergeNested(root map[string]any, fields []string, value any) {
	current := root
	for _, field := range fields[:len(fields)-1] {
		next, ok := current[field].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[field] = next
		}
		current = next
	}

	current[fields[len(fields)-1]] = value
}

// documentData - a missing or empty document reads as absent.
func documentData(snapshot *firestore.DocumentSnapshot) any {
	if snapshot == nil || !snapshot.Exists() {
		return nil
	}

	return compact(fromFirestore(snapshot.Data()))
}

// fromFirestore - timestamps become unix milliseconds like in the other stores.
func fromFirestore(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return typed.UnixMilli()
	case map[string]any:
		converted := make(map[string]any, len(typed))
		for key, child := range typed {
			converted[key] = fromFirestore(child)
		}
		return converted
	case []any:
		converted := make([]any, len(typed))
		for i, child := range typed {
			converted[i] = fromFirestore(child)
		}
		return converted
	default:
		return value
	}
}

func mapFirestoreError(err error) error {
	if err == nil {
		return nil
	}

	if status.Code(err) == codes.PermissionDenied || status.Code(err) == codes.Unauthenticated {
		return fmt.Errorf("%w: %w", apperror.ErrPermissionDenied, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
		return fmt.Errorf("%w: %w", apperror.ErrTimeout, err)
	}

	return err
}

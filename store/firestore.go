package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore backs the Store contract with Google Cloud Firestore. The array
// operators map directly onto Firestore's ArrayUnion/ArrayRemove transforms,
// so concurrent membership mutations commute server-side.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func (f *Firestore) Get(ctx context.Context, path string) (*Document, error) {
	snap, err := f.client.Doc(path).Get(ctx)
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return &Document{Path: path, ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (f *Firestore) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	q := f.client.Collection(collection).Query
	for _, flt := range filters {
		q = q.Where(flt.Field, flt.Op, flt.Value)
	}

	var docs []*Document
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, mapFirestoreErr(err)
		}
		docs = append(docs, &Document{
			Path: collection + "/" + snap.Ref.ID,
			ID:   snap.Ref.ID,
			Data: snap.Data(),
		})
	}
	return docs, nil
}

func (f *Firestore) Create(ctx context.Context, collection string, data map[string]interface{}) (*Document, error) {
	ref, _, err := f.client.Collection(collection).Add(ctx, translateOps(data))
	if err != nil {
		return nil, mapFirestoreErr(err)
	}
	return &Document{Path: collection + "/" + ref.ID, ID: ref.ID, Data: data}, nil
}

func (f *Firestore) MergeWrite(ctx context.Context, path string, fields map[string]interface{}) error {
	_, err := f.client.Doc(path).Set(ctx, translateOps(fields), firestore.MergeAll)
	return mapFirestoreErr(err)
}

func (f *Firestore) Delete(ctx context.Context, path string) error {
	_, err := f.client.Doc(path).Delete(ctx)
	return mapFirestoreErr(err)
}

func (f *Firestore) Subscribe(ctx context.Context, path string, onChange func(*Document), onError func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := f.client.Doc(path).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if status.Code(err) == codes.Canceled {
					return
				}
				onError(mapFirestoreErr(err))
				return
			}
			if !snap.Exists() {
				onChange(nil)
				continue
			}
			onChange(&Document{Path: path, ID: snap.Ref.ID, Data: snap.Data()})
		}
	}()
	return cancel, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

// translateOps rewrites the portable field operators into their Firestore
// counterparts. Array operators only appear at the top level of a write;
// ServerNow may sit inside nested maps (read markers).
func translateOps(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for key, value := range fields {
		switch op := value.(type) {
		case Union:
			out[key] = firestore.ArrayUnion(op.Values...)
		case Remove:
			out[key] = firestore.ArrayRemove(op.Values...)
		case ServerNow:
			out[key] = firestore.ServerTimestamp
		case map[string]interface{}:
			out[key] = translateOps(op)
		default:
			out[key] = value
		}
	}
	return out
}

func mapFirestoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.PermissionDenied:
		return ErrPermissionDenied
	default:
		msg := err.Error()
		if idx := strings.Index(msg, "desc = "); idx >= 0 {
			msg = msg[idx+len("desc = "):]
		}
		return fmt.Errorf("%w: %s", ErrUnavailable, msg)
	}
}

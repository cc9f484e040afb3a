package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the document does not exist (or was deleted concurrently).
	ErrNotFound = errors.New("document not found")
	// ErrPermissionDenied means the caller lost read/write access to the path.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrUnavailable covers transport failures; the caller may retry later.
	ErrUnavailable = errors.New("store unavailable")
)

// Union adds values to an array field, skipping values already present.
type Union struct {
	Values []interface{}
}

// Remove deletes all array elements equal to any of the given values.
type Remove struct {
	Values []interface{}
}

// ServerNow resolves to the store's own notion of the current time.
type ServerNow struct{}

func UnionOf(values ...interface{}) Union   { return Union{Values: values} }
func RemoveOf(values ...interface{}) Remove { return Remove{Values: values} }

// Filter is a single query predicate. Supported ops: "==", "array-contains".
type Filter struct {
	Field string
	Op    string
	Value interface{}
}

func Where(field, op string, value interface{}) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Document is a decoded snapshot of a stored document.
type Document struct {
	Path string
	ID   string
	Data map[string]interface{}
}

// Store is the document-database contract the service is built against.
//
// MergeWrite performs an atomic per-field merge: plain values overwrite the
// field, Union/Remove mutate array fields commutatively, and ServerNow stamps
// the store time. Precondition checks done by callers against a prior Get are
// NOT atomic with the subsequent MergeWrite; the commutative array operators
// are the only cross-writer safety this layer guarantees.
type Store interface {
	Get(ctx context.Context, path string) (*Document, error)
	Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error)
	Create(ctx context.Context, collection string, data map[string]interface{}) (*Document, error)
	MergeWrite(ctx context.Context, path string, fields map[string]interface{}) error
	Delete(ctx context.Context, path string) error

	// Subscribe pushes every change of the document at path to onChange; a
	// deleted document is delivered as nil. onError receives terminal
	// failures, in particular ErrPermissionDenied when the caller loses read
	// access. The returned func stops the subscription.
	Subscribe(ctx context.Context, path string, onChange func(*Document), onError func(error)) (func(), error)

	Close() error
}

// StringField reads a string field, returning "" when absent or mistyped.
func (d *Document) StringField(key string) string {
	if d == nil || d.Data == nil {
		return ""
	}
	s, _ := d.Data[key].(string)
	return s
}

// StringsField reads an array-of-strings field. The underlying value may be
// []string or []interface{} depending on the backend.
func (d *Document) StringsField(key string) []string {
	if d == nil || d.Data == nil {
		return nil
	}
	switch v := d.Data[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MapsField reads an array-of-objects field (e.g. joinRequests).
func (d *Document) MapsField(key string) []map[string]interface{} {
	if d == nil || d.Data == nil {
		return nil
	}
	switch v := d.Data[key].(type) {
	case []map[string]interface{}:
		return v
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

// TimeField reads a timestamp field; zero time when absent.
func (d *Document) TimeField(key string) time.Time {
	if d == nil || d.Data == nil {
		return time.Time{}
	}
	return AsTime(d.Data[key])
}

// AsTime normalizes the backend's timestamp representation: Firestore decodes
// timestamps to time.Time, the local store round-trips them through JSON as
// RFC 3339 strings.
func AsTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// docRow is the relational shape of a document: one JSON blob per path.
type docRow struct {
	Path       string `gorm:"primaryKey;size:512"`
	Collection string `gorm:"index;size:512"`
	Data       datatypes.JSON
	UpdatedAt  time.Time
}

func (docRow) TableName() string { return "documents" }

// Local implements the Store contract on top of gorm, for development and
// tests without Firebase credentials. Union/Remove merges are read-modify-write
// under a process-wide mutex, which gives the same commutativity guarantees as
// Firestore's array transforms as long as a single process owns the database.
type Local struct {
	db *gorm.DB

	mu sync.Mutex // serializes merge writes

	subMu   sync.Mutex
	subs    map[string]map[int]localSub
	nextSub int
}

type localSub struct {
	onChange func(*Document)
	onError  func(error)
}

// OpenLocal opens a document store on sqlite (default, ":memory:" supported)
// or postgres when the DSN says so.
func OpenLocal(dsn string) (*Local, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		if dsn == "" {
			dsn = "chatstatus.db"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.AutoMigrate(&docRow{}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &Local{db: db, subs: make(map[string]map[int]localSub)}, nil
}

func (l *Local) Get(ctx context.Context, path string) (*Document, error) {
	var row docRow
	if err := l.db.WithContext(ctx).First(&row, "path = ?", path).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rowToDocument(&row)
}

func (l *Local) Query(ctx context.Context, collection string, filters ...Filter) ([]*Document, error) {
	var rows []docRow
	if err := l.db.WithContext(ctx).Where("collection = ?", collection).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var docs []*Document
	for i := range rows {
		doc, err := rowToDocument(&rows[i])
		if err != nil {
			return nil, err
		}
		if matchesFilters(doc, filters) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (l *Local) Create(ctx context.Context, collection string, data map[string]interface{}) (*Document, error) {
	id := uuid.NewString()
	path := collection + "/" + id
	if err := l.MergeWrite(ctx, path, data); err != nil {
		return nil, err
	}
	return l.Get(ctx, path)
}

func (l *Local) MergeWrite(ctx context.Context, path string, fields map[string]interface{}) error {
	l.mu.Lock()

	current := map[string]interface{}{}
	var row docRow
	err := l.db.WithContext(ctx).First(&row, "path = ?", path).Error
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(row.Data, &current); jsonErr != nil {
			l.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrUnavailable, jsonErr)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// merge into a fresh document
	default:
		l.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	merged, err := applyMerge(current, fields)
	if err != nil {
		l.mu.Unlock()
		return err
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	save := docRow{Path: path, Collection: parentCollection(path), Data: raw, UpdatedAt: time.Now().UTC()}
	if err := l.db.WithContext(ctx).Save(&save).Error; err != nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.mu.Unlock()

	doc, err := rowToDocument(&save)
	if err == nil {
		l.notify(path, doc)
	}
	return nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	if err := l.db.WithContext(ctx).Delete(&docRow{}, "path = ?", path).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.notify(path, nil)
	return nil
}

func (l *Local) Subscribe(ctx context.Context, path string, onChange func(*Document), onError func(error)) (func(), error) {
	l.subMu.Lock()
	id := l.nextSub
	l.nextSub++
	if l.subs[path] == nil {
		l.subs[path] = make(map[int]localSub)
	}
	l.subs[path][id] = localSub{onChange: onChange, onError: onError}
	l.subMu.Unlock()

	// initial snapshot, matching Firestore listener behavior
	go func() {
		doc, err := l.Get(ctx, path)
		if errors.Is(err, ErrNotFound) {
			onChange(nil)
			return
		}
		if err != nil {
			onError(err)
			return
		}
		onChange(doc)
	}()

	stop := func() {
		l.subMu.Lock()
		delete(l.subs[path], id)
		l.subMu.Unlock()
	}
	return stop, nil
}

func (l *Local) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (l *Local) notify(path string, doc *Document) {
	l.subMu.Lock()
	targets := make([]localSub, 0, len(l.subs[path]))
	for _, sub := range l.subs[path] {
		targets = append(targets, sub)
	}
	l.subMu.Unlock()

	for _, sub := range targets {
		sub.onChange(doc)
	}
}

// applyMerge folds the field operators into the current document state.
func applyMerge(current map[string]interface{}, fields map[string]interface{}) (map[string]interface{}, error) {
	for key, value := range fields {
		switch op := value.(type) {
		case Union:
			arr := toSlice(current[key])
			for _, v := range op.Values {
				nv, err := normalizeValue(v)
				if err != nil {
					return nil, err
				}
				if !sliceContains(arr, nv) {
					arr = append(arr, nv)
				}
			}
			current[key] = arr
		case Remove:
			arr := toSlice(current[key])
			kept := make([]interface{}, 0, len(arr))
			for _, elem := range arr {
				removed := false
				for _, v := range op.Values {
					nv, err := normalizeValue(v)
					if err != nil {
						return nil, err
					}
					if reflect.DeepEqual(elem, nv) {
						removed = true
						break
					}
				}
				if !removed {
					kept = append(kept, elem)
				}
			}
			current[key] = kept
		case ServerNow:
			current[key] = time.Now().UTC().Format(time.RFC3339Nano)
		case map[string]interface{}:
			// nested maps merge per-key, matching Firestore MergeAll
			nested, _ := current[key].(map[string]interface{})
			if nested == nil {
				nested = map[string]interface{}{}
			}
			merged, err := applyMerge(nested, op)
			if err != nil {
				return nil, err
			}
			current[key] = merged
		default:
			nv, err := normalizeValue(value)
			if err != nil {
				return nil, err
			}
			current[key] = nv
		}
	}
	return current, nil
}

// normalizeValue round-trips a value through JSON so that in-memory writes and
// reread documents compare equal (times become RFC 3339 strings, structs
// become maps).
func normalizeValue(v interface{}) (interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}

func toSlice(v interface{}) []interface{} {
	if arr, ok := v.([]interface{}); ok {
		return arr
	}
	return nil
}

func sliceContains(arr []interface{}, v interface{}) bool {
	for _, elem := range arr {
		if reflect.DeepEqual(elem, v) {
			return true
		}
	}
	return false
}

func matchesFilters(doc *Document, filters []Filter) bool {
	for _, f := range filters {
		want, err := normalizeValue(f.Value)
		if err != nil {
			return false
		}
		switch f.Op {
		case "==":
			got, err := normalizeValue(doc.Data[f.Field])
			if err != nil || !reflect.DeepEqual(got, want) {
				return false
			}
		case "array-contains":
			got, err := normalizeValue(doc.Data[f.Field])
			if err != nil {
				return false
			}
			arr, ok := got.([]interface{})
			if !ok || !sliceContains(arr, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func rowToDocument(row *docRow) (*Document, error) {
	data := map[string]interface{}{}
	if len(row.Data) > 0 {
		if err := json.Unmarshal(row.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	id := row.Path
	if idx := strings.LastIndex(row.Path, "/"); idx >= 0 {
		id = row.Path[idx+1:]
	}
	return &Document{Path: row.Path, ID: id, Data: data}, nil
}

func parentCollection(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		return path[:idx]
	}
	return path
}

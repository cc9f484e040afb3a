package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Local {
	t.Helper()
	st, err := OpenLocal(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestMergeWriteCreatesAndMerges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MergeWrite(ctx, "groups/g1", map[string]interface{}{"name": "hikers"}); err != nil {
		t.Fatalf("merge write: %v", err)
	}
	if err := st.MergeWrite(ctx, "groups/g1", map[string]interface{}{"visibility": "private"}); err != nil {
		t.Fatalf("merge write: %v", err)
	}

	doc, err := st.Get(ctx, "groups/g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.StringField("name") != "hikers" || doc.StringField("visibility") != "private" {
		t.Fatalf("merge lost fields: %v", doc.Data)
	}
	if doc.ID != "g1" {
		t.Fatalf("doc ID = %q", doc.ID)
	}
}

func TestUnionDeduplicates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := st.MergeWrite(ctx, "groups/g1", map[string]interface{}{
			"participantIds": UnionOf("u1", "u2"),
		})
		if err != nil {
			t.Fatalf("merge write: %v", err)
		}
	}

	doc, err := st.Get(ctx, "groups/g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ids := doc.StringsField("participantIds")
	if len(ids) != 2 {
		t.Fatalf("participantIds = %v, want exactly u1,u2", ids)
	}
}

func TestRemoveMatchesMapsByValue(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	request := map[string]interface{}{
		"userId": "u2",
		"status": "pending",
	}
	err := st.MergeWrite(ctx, "groups/g1", map[string]interface{}{
		"joinRequests": UnionOf(request),
	})
	if err != nil {
		t.Fatalf("union: %v", err)
	}

	// remove using the element as read back from the store
	doc, err := st.Get(ctx, "groups/g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stored := doc.MapsField("joinRequests")
	if len(stored) != 1 {
		t.Fatalf("stored requests = %d", len(stored))
	}

	err = st.MergeWrite(ctx, "groups/g1", map[string]interface{}{
		"joinRequests": RemoveOf(stored[0]),
	})
	if err != nil {
		t.Fatalf("remove: %v", err)
	}

	doc, err = st.Get(ctx, "groups/g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if left := doc.MapsField("joinRequests"); len(left) != 0 {
		t.Fatalf("joinRequests = %v, want empty", left)
	}
}

func TestNestedMapMerge(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.MergeWrite(ctx, "chats/c1", map[string]interface{}{
		"lastReadAt": map[string]interface{}{"u1": ServerNow{}},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	err = st.MergeWrite(ctx, "chats/c1", map[string]interface{}{
		"lastReadAt": map[string]interface{}{"u2": ServerNow{}},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	doc, err := st.Get(ctx, "chats/c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	marks, ok := doc.Data["lastReadAt"].(map[string]interface{})
	if !ok {
		t.Fatalf("lastReadAt = %T", doc.Data["lastReadAt"])
	}
	if AsTime(marks["u1"]).IsZero() || AsTime(marks["u2"]).IsZero() {
		t.Fatalf("nested merge lost a read marker: %v", marks)
	}
}

func TestServerNowStampsTime(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second)
	if err := st.MergeWrite(ctx, "chats/c1", map[string]interface{}{"lastMessageAt": ServerNow{}}); err != nil {
		t.Fatalf("merge: %v", err)
	}

	doc, err := st.Get(ctx, "chats/c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stamped := doc.TimeField("lastMessageAt")
	if stamped.Before(before) || stamped.After(time.Now().Add(time.Second)) {
		t.Fatalf("lastMessageAt = %v, not near now", stamped)
	}
}

func TestQueryFilters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	writes := []struct {
		path string
		data map[string]interface{}
	}{
		{"chats/c1", map[string]interface{}{"type": "group", "visibility": "public", "participantIds": []string{"u1"}}},
		{"chats/c2", map[string]interface{}{"type": "group", "visibility": "private", "participantIds": []string{"u1", "u2"}}},
		{"chats/c3", map[string]interface{}{"type": "direct", "participantIds": []string{"u2", "u3"}}},
	}
	for _, w := range writes {
		if err := st.MergeWrite(ctx, w.path, w.data); err != nil {
			t.Fatalf("write %s: %v", w.path, err)
		}
	}

	public, err := st.Query(ctx, "chats", Where("type", "==", "group"), Where("visibility", "==", "public"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(public) != 1 || public[0].ID != "c1" {
		t.Fatalf("public groups = %v", public)
	}

	mine, err := st.Query(ctx, "chats", Where("participantIds", "array-contains", "u2"))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("u2 chats = %d, want 2", len(mine))
	}
}

func TestQueryScopedToCollection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MergeWrite(ctx, "chats/c1", map[string]interface{}{"type": "group"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := st.Create(ctx, "chats/c1/messages", map[string]interface{}{"text": "hi"}); err != nil {
		t.Fatalf("create message: %v", err)
	}

	chats, err := st.Query(ctx, "chats")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(chats) != 1 {
		t.Fatalf("chats = %d, want 1 (messages must not leak into the parent collection)", len(chats))
	}

	messages, err := st.Query(ctx, "chats/c1/messages")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(messages))
	}
}

func TestCreateAssignsID(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	doc, err := st.Create(ctx, "chats", map[string]interface{}{"type": "group"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("no ID assigned")
	}
	if doc.Path != "chats/"+doc.ID {
		t.Fatalf("path = %q", doc.Path)
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MergeWrite(ctx, "chats/c1", map[string]interface{}{"type": "group"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := st.Delete(ctx, "chats/c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, "chats/c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get deleted err = %v, want ErrNotFound", err)
	}
}

func TestSubscribe(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.MergeWrite(ctx, "chats/c1", map[string]interface{}{"name": "one"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	events := make(chan *Document, 8)
	stop, err := st.Subscribe(ctx, "chats/c1", func(doc *Document) {
		events <- doc
	}, func(err error) {
		t.Errorf("unexpected subscription error: %v", err)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	// initial snapshot
	select {
	case doc := <-events:
		if doc == nil || doc.StringField("name") != "one" {
			t.Fatalf("initial snapshot = %v", doc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if err := st.MergeWrite(ctx, "chats/c1", map[string]interface{}{"name": "two"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case doc := <-events:
		if doc == nil || doc.StringField("name") != "two" {
			t.Fatalf("update snapshot = %v", doc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}

	if err := st.Delete(ctx, "chats/c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case doc := <-events:
		if doc != nil {
			t.Fatalf("deletion snapshot = %v, want nil", doc)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no deletion delivered")
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"chatstatus-backend/models"
	"chatstatus-backend/services"
	"chatstatus-backend/store"

	"github.com/gin-gonic/gin"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.OpenLocal(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	Init(st, services.NewMembership(st, nil), services.NewWatcher(st))

	r := gin.New()
	api := r.Group("/api")
	// test identity: headers instead of tokens
	api.Use(func(c *gin.Context) {
		c.Set("principal", models.Principal{
			ID:          c.GetHeader("X-User-ID"),
			DisplayName: c.GetHeader("X-User-Name"),
		})
	})
	api.POST("/groups", CreateGroup)
	api.GET("/groups/:id", GetGroup)
	api.PUT("/groups/:id/visibility", SetVisibility)
	api.POST("/groups/:id/join", JoinGroup)
	api.GET("/groups/:id/requests", ListJoinRequests)
	api.POST("/groups/:id/requests/:uid/approve", ApproveJoinRequest)
	api.POST("/groups/:id/requests/:uid/reject", RejectJoinRequest)
	api.DELETE("/groups/:id/members/:uid", RemoveMember)
	api.POST("/groups/:id/leave", LeaveGroup)
	return r
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, r *gin.Engine, method, path, userID, userName string, body interface{}) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("X-User-Name", userName)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var envelope apiEnvelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, envelope
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	r := setupRouter(t)

	// u1 creates a public group
	w, env := doRequest(t, r, http.MethodPost, "/api/groups", "u1", "Alice", gin.H{
		"name": "book club",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	var created models.GroupResponse
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if created.ID == "" || created.CreatedBy != "u1" {
		t.Fatalf("created = %+v", created)
	}

	// flip to private
	w, _ = doRequest(t, r, http.MethodPut, "/api/groups/"+created.ID+"/visibility", "u1", "Alice", gin.H{
		"visibility": "private",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("visibility status = %d body=%s", w.Code, w.Body.String())
	}

	// u2 asks to join, gets a pending request
	w, _ = doRequest(t, r, http.MethodPost, "/api/groups/"+created.ID+"/join", "u2", "Bob", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("join status = %d body=%s", w.Code, w.Body.String())
	}

	// a second identical request conflicts
	w, _ = doRequest(t, r, http.MethodPost, "/api/groups/"+created.ID+"/join", "u2", "Bob", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate join status = %d", w.Code)
	}

	// only admins see the request list
	w, _ = doRequest(t, r, http.MethodGet, "/api/groups/"+created.ID+"/requests", "u2", "Bob", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("requests as non-admin status = %d", w.Code)
	}

	w, env = doRequest(t, r, http.MethodGet, "/api/groups/"+created.ID+"/requests", "u1", "Alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("requests status = %d", w.Code)
	}
	var pending []models.JoinRequestResponse
	if err := json.Unmarshal(env.Data, &pending); err != nil {
		t.Fatalf("decode requests: %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != "u2" {
		t.Fatalf("pending = %+v", pending)
	}

	// non-admin approval is rejected
	w, _ = doRequest(t, r, http.MethodPost, "/api/groups/"+created.ID+"/requests/u2/approve", "u2", "Bob", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("approve as non-admin status = %d", w.Code)
	}

	// admin approves
	w, _ = doRequest(t, r, http.MethodPost, "/api/groups/"+created.ID+"/requests/u2/approve", "u1", "Alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d body=%s", w.Code, w.Body.String())
	}

	// approving again 404s: the request is gone
	w, _ = doRequest(t, r, http.MethodPost, "/api/groups/"+created.ID+"/requests/u2/approve", "u1", "Alice", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("re-approve status = %d", w.Code)
	}

	// the member list now shows u2
	w, env = doRequest(t, r, http.MethodGet, "/api/groups/"+created.ID, "u1", "Alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get group status = %d", w.Code)
	}
	var detail models.GroupResponse
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		t.Fatalf("decode group: %v", err)
	}
	if len(detail.Participants) != 2 {
		t.Fatalf("participants = %+v", detail.Participants)
	}

	// creator removal is forbidden, removing u2 works
	w, _ = doRequest(t, r, http.MethodDelete, "/api/groups/"+created.ID+"/members/u1", "u1", "Alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("remove creator status = %d", w.Code)
	}
	w, _ = doRequest(t, r, http.MethodDelete, "/api/groups/"+created.ID+"/members/u2", "u1", "Alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove member status = %d body=%s", w.Code, w.Body.String())
	}

	// the creator cannot leave
	w, _ = doRequest(t, r, http.MethodPost, "/api/groups/"+created.ID+"/leave", "u1", "Alice", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("creator leave status = %d", w.Code)
	}
}

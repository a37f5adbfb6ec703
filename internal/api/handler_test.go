package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nugulmap/markers/internal/marker"
	"github.com/nugulmap/markers/internal/model"
	"github.com/nugulmap/markers/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	srv := httptest.NewServer(NewRouter(NewHandler(marker.NewService(st)), RouterOptions{}))
	t.Cleanup(srv.Close)
	return srv, st
}

func do(t *testing.T, method, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestMarkerLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/marker",
		`{"name":"시청 흡연부스","latitude":37.5663,"longitude":126.9779,"amenities":["roof"],"capacity":4}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "saved", body["status"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	resp, body = do(t, http.MethodGet, srv.URL+"/marker/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "시청 흡연부스", body["name"])
	assert.Equal(t, "operating", body["status"])
	assert.NotEmpty(t, body["created_at"])
	assert.NotEmpty(t, body["last_updated"])

	resp, body = do(t, http.MethodPut, srv.URL+"/marker/"+id, `{"status":"closed","name":null}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"status": "updated", "id": id}, body)

	_, body = do(t, http.MethodGet, srv.URL+"/marker/"+id, "")
	assert.Equal(t, "closed", body["status"])
	assert.Equal(t, "시청 흡연부스", body["name"])

	resp, _ = do(t, http.MethodDelete, srv.URL+"/marker/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = do(t, http.MethodGet, srv.URL+"/marker/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Marker not found", body["detail"])
}

func TestUpdate_EmptyListsClear(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPost, srv.URL+"/marker",
		`{"name":"역 앞","amenities":["roof","ashtray"],"reviews":["ok"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	resp, _ = do(t, http.MethodPut, srv.URL+"/marker/"+id, `{"amenities":[],"reviews":[]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = do(t, http.MethodGet, srv.URL+"/marker/"+id, "")
	assert.NotContains(t, body, "amenities")
	assert.NotContains(t, body, "reviews")
	assert.Equal(t, "역 앞", body["name"])
}

func TestNotFoundRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := do(t, http.MethodPut, srv.URL+"/marker/missing", `{"name":"x"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Marker not found", body["detail"])

	resp, body = do(t, http.MethodDelete, srv.URL+"/marker/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Marker not found", body["detail"])
}

func TestCreate_BadInput(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed JSON", `{"name":`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"trailing data", `{} {}`, http.StatusBadRequest},
		{"latitude as string", `{"latitude":"37.5"}`, http.StatusUnprocessableEntity},
		{"capacity as float", `{"capacity":2.5}`, http.StatusUnprocessableEntity},
		{"latitude out of range", `{"latitude":95}`, http.StatusUnprocessableEntity},
		{"negative rating", `{"rating":-1}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, http.MethodPost, srv.URL+"/marker", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestCreate_UnknownFieldsIgnored(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, _ := do(t, http.MethodPost, srv.URL+"/marker", `{"name":"x","unknown":true}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestList(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "a", store.Document{"region": "용산구", "type": "개방형"}))
	require.NoError(t, st.Put(ctx, "b", store.Document{"region": "용산구", "type": "폐쇄형"}))
	require.NoError(t, st.Put(ctx, "c", store.Document{"region": "중구"}))

	resp, body := do(t, http.MethodGet, srv.URL+"/marker", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["markers"], 3)

	_, body = do(t, http.MethodGet, srv.URL+"/marker?skip=1&limit=1", "")
	markers := body["markers"].([]any)
	require.Len(t, markers, 1)
	assert.Equal(t, "b", markers[0].(map[string]any)["id"])

	_, body = do(t, http.MethodGet, srv.URL+"/marker?region=%EC%9A%A9%EC%82%B0%EA%B5%AC&type=%EA%B0%9C%EB%B0%A9%ED%98%95", "")
	markers = body["markers"].([]any)
	require.Len(t, markers, 1)
	assert.Equal(t, "a", markers[0].(map[string]any)["id"])

	_, body = do(t, http.MethodGet, srv.URL+"/marker?limit=0", "")
	assert.Equal(t, []any{}, body["markers"])

	_, body = do(t, http.MethodGet, srv.URL+"/marker?skip=50", "")
	assert.Equal(t, []any{}, body["markers"])
}

func TestList_BadPaging(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, q := range []string{"skip=-1", "limit=-5", "limit=abc", "skip=1.5"} {
		resp, body := do(t, http.MethodGet, srv.URL+"/marker?"+q, "")
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, q)
		assert.NotEmpty(t, body["detail"], q)
	}
}

func TestCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/marker", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://nugulmap.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

type mockMarkers struct {
	mock.Mock
}

func (m *mockMarkers) Create(ctx context.Context, mk model.Marker) (string, error) {
	args := m.Called(ctx, mk)
	return args.String(0), args.Error(1)
}

func (m *mockMarkers) Get(ctx context.Context, id string) (*model.Marker, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*model.Marker)
	return res, args.Error(1)
}

func (m *mockMarkers) List(ctx context.Context, filter store.ListFilter) ([]*model.Marker, error) {
	args := m.Called(ctx, filter)
	res, _ := args.Get(0).([]*model.Marker)
	return res, args.Error(1)
}

func (m *mockMarkers) Update(ctx context.Context, id string, u model.MarkerUpdate) error {
	return m.Called(ctx, id, u).Error(0)
}

func (m *mockMarkers) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	storeErr := errors.New("postgres: connection refused to 10.0.0.5")

	m := new(mockMarkers)
	m.On("Create", mock.Anything, mock.Anything).Return("", storeErr)
	m.On("List", mock.Anything, store.ListFilter{Limit: 100}).Return(nil, storeErr)
	m.On("Get", mock.Anything, "x").Return(nil, storeErr)
	m.On("Update", mock.Anything, "x", mock.Anything).Return(storeErr)
	m.On("Delete", mock.Anything, "x").Return(storeErr)

	srv := httptest.NewServer(NewRouter(NewHandler(m), RouterOptions{}))
	defer srv.Close()

	calls := []struct{ method, path, body string }{
		{http.MethodPost, "/marker", `{}`},
		{http.MethodGet, "/marker", ""},
		{http.MethodGet, "/marker/x", ""},
		{http.MethodPut, "/marker/x", `{}`},
		{http.MethodDelete, "/marker/x", ""},
	}
	for _, c := range calls {
		resp, body := do(t, c.method, srv.URL+c.path, c.body)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode, c.method+" "+c.path)
		assert.Equal(t, map[string]any{"detail": "Internal Server Error"}, body)
	}
	m.AssertExpectations(t)
}

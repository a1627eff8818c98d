package api_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/tido/internal/api"
	"github.com/nhle/tido/internal/logging"
	"github.com/nhle/tido/internal/model"
	"github.com/nhle/tido/internal/store"
	"github.com/nhle/tido/internal/testutil"
)

type env struct {
	srv   *httptest.Server
	s     *store.SQLiteStore
	admin *model.User
	list  *model.List
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	s := testutil.NewTestStore(t)
	admin := testutil.CreateUser(t, s, testutil.AdminName)
	l, err := s.CreateList(ctx, admin.ID, "Groceries")
	require.NoError(t, err)
	_, err = s.CreateTodo(ctx, admin.ID, model.NewTodo{ListID: l.ID, Text: "milk, whole"})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(s, http.NotFoundHandler(), logging.Discard()).Handler())
	t.Cleanup(srv.Close)
	return &env{srv: srv, s: s, admin: admin, list: l}
}

func (e *env) token(t *testing.T, u *model.User) string {
	t.Helper()
	sess, err := e.s.CreateSession(context.Background(), u.ID)
	require.NoError(t, err)
	return sess.Token
}

func (e *env) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	resp := e.get(t, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Positive(t, body["schema_version"])
}

func TestExportCSV(t *testing.T) {
	e := newEnv(t)
	resp := e.get(t, "/lists/"+e.list.ID+"/export?format=csv", e.token(t, e.admin))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "Groceries-export-")

	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "milk, whole", rows[1][1])
}

func TestExportJSONWithCookie(t *testing.T) {
	e := newEnv(t)
	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/lists/"+e.list.ID+"/export", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: api.SessionCookie, Value: e.token(t, e.admin)})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc struct {
		Metadata struct {
			ListName string `json:"list_name"`
		} `json:"metadata"`
		Todos []model.Todo `json:"todos"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Groceries", doc.Metadata.ListName)
	assert.Len(t, doc.Todos, 1)
}

func TestExportRejects(t *testing.T) {
	e := newEnv(t)
	outsider := testutil.CreateUser(t, e.s, "outsider")
	path := "/lists/" + e.list.ID + "/export"

	tests := []struct {
		name   string
		path   string
		token  string
		status int
		code   string
	}{
		{"no session", path, "", http.StatusUnauthorized, "unauthorized"},
		{"bogus session", path, "nope", http.StatusUnauthorized, "unauthorized"},
		{"non member", path, e.token(t, outsider), http.StatusNotFound, "not_found"},
		{"bad format", path + "?format=xml", e.token(t, e.admin), http.StatusBadRequest, "invalid_payload"},
		{"bad list id", "/lists/not-a-uuid/export", e.token(t, e.admin), http.StatusBadRequest, "invalid_payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.get(t, tt.path, tt.token)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body api.ErrorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func (e *env) upload(t *testing.T, token, filename, content string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/lists/import", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestImportIntoNewList(t *testing.T) {
	e := newEnv(t)
	csvBody := "ID,Text,Priority,Parent Task ID\n1,bake,high,\n2,buy flour,,1\n"

	resp := e.upload(t, e.token(t, e.admin), "recipes.csv", csvBody, map[string]string{
		"createNewList": "true",
		"newListName":   "Recipes",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		ListID   string   `json:"list_id"`
		ListName string   `json:"list_name"`
		Imported int      `json:"imported_count"`
		Errors   []string `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, "Recipes", res.ListName)
	assert.Equal(t, 2, res.Imported)
	assert.Empty(t, res.Errors)

	todos, err := e.s.GetTodosForList(context.Background(), e.admin.ID, res.ListID)
	require.NoError(t, err)
	assert.Len(t, todos, 2)
}

func TestImportIntoExistingListFromJSON(t *testing.T) {
	e := newEnv(t)

	resp := e.upload(t, e.token(t, e.admin), "backup.json", `{"todos": [{"text": "eggs"}]}`,
		map[string]string{"listId": e.list.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	todos, err := e.s.GetTodosForList(context.Background(), e.admin.ID, e.list.ID)
	require.NoError(t, err)
	assert.Len(t, todos, 2)
}

func TestImportRejects(t *testing.T) {
	e := newEnv(t)
	outsider := testutil.CreateUser(t, e.s, "outsider")

	tests := []struct {
		name     string
		token    string
		filename string
		fields   map[string]string
		status   int
		code     string
	}{
		{"no session", "", "a.csv", map[string]string{"listId": e.list.ID}, http.StatusUnauthorized, "unauthorized"},
		{"no file", e.token(t, e.admin), "", map[string]string{"listId": e.list.ID}, http.StatusBadRequest, "invalid_payload"},
		{"no target", e.token(t, e.admin), "a.csv", nil, http.StatusBadRequest, "invalid_payload"},
		{"non member", e.token(t, outsider), "a.csv", map[string]string{"listId": e.list.ID}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.upload(t, tt.token, tt.filename, "Text\nmilk\n", tt.fields)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body api.ErrorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

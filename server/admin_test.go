package server

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/MattCruikshank/goft/internal/config"
	"github.com/MattCruikshank/goft/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (b *browser) json(method, path, body string, out interface{}) *http.Response {
	b.t.Helper()
	req, err := http.NewRequest(method, b.base+path, strings.NewReader(body))
	require.NoError(b.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.http.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(b.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func newAdmin(t *testing.T) (*testEnv, *browser) {
	env := newTestEnv(t, config.Default().Chat)
	b := newBrowser(t, env)
	resp, _ := b.post("/signup", url.Values{"name": {"admin"}, "password": {"secret"}})
	requireRedirect(t, resp, "/rooms")
	return env, b
}

func TestAdminRooms(t *testing.T) {
	env, b := newAdmin(t)

	var rooms []models.Room
	resp := b.json(http.MethodGet, "/api/rooms", "", &rooms)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	want := []models.Room{*env.tech, *env.book}
	if diff := cmp.Diff(want, rooms); diff != "" {
		t.Errorf("GET /api/rooms mismatch (-want +got):\n%s", diff)
	}

	var created models.Room
	resp = b.json(http.MethodPost, "/api/rooms", `{"name":" Music ","description":"Tunes"}`, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	if diff := cmp.Diff(models.Room{Name: "Music", Description: "Tunes"}, created,
		cmpopts.IgnoreFields(models.Room{}, "ID")); diff != "" {
		t.Errorf("POST /api/rooms mismatch (-want +got):\n%s", diff)
	}
	assert.NotZero(t, created.ID)

	var apiErr map[string]string
	resp = b.json(http.MethodPost, "/api/rooms", `{"name":""}`, &apiErr)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Missing room name", apiErr["error"])

	resp = b.json(http.MethodPost, "/api/rooms", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = b.json(http.MethodPut, "/api/rooms", `{}`, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAdminRoom(t *testing.T) {
	env, b := newAdmin(t)
	path := "/api/rooms/" + itoa(env.tech.ID)

	var room models.Room
	resp := b.json(http.MethodGet, path, "", &room)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, *env.tech, room)

	resp = b.json(http.MethodPut, path, `{"name":"Tech","description":"Renamed"}`, &room)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.Room{ID: env.tech.ID, Name: "Tech", Description: "Renamed"}, room)

	stored, err := env.db.GetRoom(env.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Description)

	resp = b.json(http.MethodGet, "/api/rooms/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = b.json(http.MethodGet, "/api/rooms/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = b.json(http.MethodPatch, path, `{}`, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	resp = b.json(http.MethodPost, path, `{}`, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = b.json(http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = b.json(http.MethodGet, path, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminMessages(t *testing.T) {
	env, b := newAdmin(t)
	path := "/api/rooms/" + itoa(env.book.ID) + "/messages"

	admin, _, err := env.db.GetUserByName("admin")
	require.NoError(t, err)
	var ids []string
	for _, text := range []string{"one", "two", "three"} {
		msg, err := env.db.CreateMessage(env.book.ID, admin, text)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}

	var msgs []models.Message
	resp := b.json(http.MethodGet, path+"?limit=2", "", &msgs)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)

	msgs = nil
	b.json(http.MethodGet, path+"?before="+ids[1], "", &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, "one", msgs[0].Text)

	resp = b.json(http.MethodPost, path, `{}`, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = b.json(http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	msgs = nil
	b.json(http.MethodGet, path, "", &msgs)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
}

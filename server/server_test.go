/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb/command"
	"github.com/sneldb/sneldb/event"
	"github.com/sneldb/sneldb/persistence"
	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/schema"
)

// fakeShard is the same minimal command.Shard stand-in the command
// package's own tests use, duplicated here since it is unexported
// there: every Store appends to rows, Query returns every row (no
// predicate evaluation — server's tests only care about routing, not
// filtering semantics, which the command and shard packages already
// cover).
type fakeShard struct {
	id      int
	schemas map[string]*schema.Schema
	rows    []event.Event
	nextID  uint64
}

func (f *fakeShard) ShardID() int { return f.id }

func (f *fakeShard) Define(_ context.Context, s *schema.Schema) error {
	f.schemas[s.EventType] = s
	return nil
}

func (f *fakeShard) Store(_ context.Context, eventType, contextID string, payload json.RawMessage) (uint64, error) {
	f.nextID++
	f.rows = append(f.rows, event.Event{EventID: f.nextID, EventType: eventType, ContextID: contextID, Payload: payload})
	return f.nextID, nil
}

func (f *fakeShard) Query(_ context.Context, req query.Request) ([]event.Event, error) {
	return f.rows, nil
}

func (f *fakeShard) Flush(_ context.Context) error { return nil }

func newTestServer(t *testing.T) (*Server, []byte) {
	t.Helper()
	reg, err := schema.OpenRegistry(filepath.Join(t.TempDir(), "schema.log"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	shard := &fakeShard{id: 0, schemas: map[string]*schema.Schema{}}
	orch := query.NewOrchestrator([]query.ShardQuerier{shard})
	snaps := command.NewSnapshotStore(persistence.NewFileBackend(t.TempDir()))
	disp := command.NewDispatcher(reg, []command.Shard{shard}, orch, replay.NewEngine(nil, snaps), snaps)

	secret := []byte("testsecret")
	auth := Auth{Secrets: map[string][]byte{"alice": secret}}
	return New(disp, auth, NewBroadcaster()), secret
}

func postCommand(t *testing.T, srv *Server, secret []byte, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(body))
	req.Header.Set("X-Auth-User", "alice")
	req.Header.Set("X-Auth-Signature", sign(secret, []byte(body)))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

func TestServerRejectsUnsignedRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/command", strings.NewReader(`{"kind":"FLUSH"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServerDefineThenStoreThenQuery(t *testing.T) {
	srv, secret := newTestServer(t)

	rec := postCommand(t, srv, secret, `{"kind":"DEFINE","define":{"event_type":"login","fields":{"user":{"kind":"string"}}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postCommand(t, srv, secret, `{"kind":"STORE","store":{"event_type":"login","context_id":"ctx-1","payload":{"user":"a"}}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postCommand(t, srv, secret, `{"kind":"QUERY","query":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}

func TestServerFlushWithBroadcasterReturnsOK(t *testing.T) {
	srv, secret := newTestServer(t)
	rec := postCommand(t, srv, secret, `{"kind":"FLUSH"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServerUnknownKindIsBadRequest(t *testing.T) {
	srv, secret := newTestServer(t)
	rec := postCommand(t, srv, secret, `{"kind":"NONSENSE"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerDefineWithUnknownFieldKindIsBadRequest(t *testing.T) {
	srv, secret := newTestServer(t)
	rec := postCommand(t, srv, secret, `{"kind":"DEFINE","define":{"event_type":"login","fields":{"user":{"kind":"bogus"}}}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

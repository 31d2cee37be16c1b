package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"injury-report/internal/auth"
	"injury-report/internal/injury"
)

type fakeGraph struct {
	server     *httptest.Server
	siteCalls  atomic.Int32
	listCalls  atomic.Int32
	mu         sync.Mutex
	lastBody   map[string]any
	lastMethod string
}

func newFakeGraph(t *testing.T) *fakeGraph {
	f := &fakeGraph{}
	mux := http.NewServeMux()
	mux.HandleFunc("/sites/contoso.sharepoint.com:/sites/Safety", func(w http.ResponseWriter, r *http.Request) {
		f.siteCalls.Add(1)
		writeJSON(w, map[string]string{"id": "site-1"})
	})
	mux.HandleFunc("/sites/site-1/lists", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls.Add(1)
		if r.URL.Query().Get("$filter") == "displayName eq 'InjuryReports'" {
			writeJSON(w, map[string]any{"value": []map[string]string{{"id": "list-1"}}})
			return
		}
		writeJSON(w, map[string]any{"value": []any{}})
	})
	mux.HandleFunc("/sites/site-1/lists/list-1/items", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			f.capture(r)
			w.WriteHeader(http.StatusCreated)
			writeJSON(w, map[string]any{"id": "17"})
		case http.MethodGet:
			if r.URL.Query().Get("page") == "2" {
				writeJSON(w, map[string]any{"value": []map[string]any{{"id": "2", "fields": map[string]any{"Title": "B"}}}})
				return
			}
			writeJSON(w, map[string]any{
				"value":           []map[string]any{{"id": "1", "fields": map[string]any{"Title": "A"}}},
				"@odata.nextLink": f.server.URL + "/sites/site-1/lists/list-1/items?page=2",
			})
		}
	})
	mux.HandleFunc("/sites/site-1/lists/list-1/items/17", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer delegated" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodPatch:
			f.capture(r)
			writeJSON(w, map[string]any{"Title": "updated"})
		case http.MethodGet:
			assert.Equal(t, "fields", r.URL.Query().Get("$expand"))
			writeJSON(w, map[string]any{"id": "17", "fields": map[string]any{"Title": "X - 2024-03-15"}})
		case http.MethodDelete:
			f.mu.Lock()
			f.lastMethod = r.Method
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/sites/site-1/lists/list-1/items/500", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"generalException"}}`, http.StatusInternalServerError)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGraph) capture(r *http.Request) {
	body := map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMethod = r.Method
	f.lastBody = body
}

func (f *fakeGraph) last() (string, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastMethod, f.lastBody
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var delegated = auth.StaticToken("delegated")

var safetySite = Site{Hostname: "contoso.sharepoint.com", Path: "/sites/Safety", ListName: "InjuryReports"}

func TestSessionResolvesOnce(t *testing.T) {
	f := newFakeGraph(t)
	s := NewClient(f.server.URL, 0).NewSession(delegated, safetySite, ListRef{})
	ctx := context.Background()

	ref, err := s.Ref(ctx)
	require.NoError(t, err)
	assert.Equal(t, ListRef{SiteID: "site-1", ListID: "list-1"}, ref)

	_, err = s.Ref(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.siteCalls.Load())
	assert.Equal(t, int32(1), f.listCalls.Load())
}

func TestSessionUsesKnownRef(t *testing.T) {
	f := newFakeGraph(t)
	s := NewClient(f.server.URL, 0).NewSession(delegated, safetySite, ListRef{SiteID: "site-1", ListID: "list-1"})

	_, err := s.Get(context.Background(), "17")
	require.NoError(t, err)
	assert.Zero(t, f.siteCalls.Load())
	assert.Zero(t, f.listCalls.Load())
}

func TestSessionSiteIDSkipsHostnameLookup(t *testing.T) {
	f := newFakeGraph(t)
	s := NewClient(f.server.URL, 0).NewSession(delegated, Site{SiteID: "site-1", ListName: "InjuryReports"}, ListRef{})

	ref, err := s.Ref(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "list-1", ref.ListID)
	assert.Zero(t, f.siteCalls.Load())
}

func TestSessionListNotFound(t *testing.T) {
	f := newFakeGraph(t)
	site := safetySite
	site.ListName = "Missing"
	_, err := NewClient(f.server.URL, 0).NewSession(delegated, site, ListRef{}).Ref(context.Background())
	assert.ErrorIs(t, err, ErrListNotFound)
}

func TestSessionUnconfiguredSite(t *testing.T) {
	_, err := NewClient("http://unused", 0).NewSession(delegated, Site{ListName: "InjuryReports"}, ListRef{}).Ref(context.Background())
	assert.Error(t, err)
}

func TestCreateUpdateGetDelete(t *testing.T) {
	f := newFakeGraph(t)
	s := NewClient(f.server.URL, 0).NewSession(delegated, safetySite, ListRef{})
	ctx := context.Background()

	id, err := s.Create(ctx, map[string]any{"Title": "X - 2024-03-15"})
	require.NoError(t, err)
	assert.Equal(t, "17", id)
	method, body := f.last()
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, map[string]any{"Title": "X - 2024-03-15"}, body["fields"])

	require.NoError(t, s.Update(ctx, id, map[string]any{"Title": "updated"}))
	method, _ = f.last()
	assert.Equal(t, http.MethodPatch, method)

	item, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "X - 2024-03-15", item.Fields["Title"])

	require.NoError(t, s.Delete(ctx, id))
	method, _ = f.last()
	assert.Equal(t, http.MethodDelete, method)
}

func TestUpdateSendsClearedFieldsAsNull(t *testing.T) {
	f := newFakeGraph(t)
	s := NewClient(f.server.URL, 0).NewSession(delegated, safetySite, ListRef{SiteID: "site-1", ListID: "list-1"})

	rec := injury.ExternalRecord{Title: "Dana Reyes - 2024-03-15", DateOfInjury: "2024-03-15"}
	require.NoError(t, s.Update(context.Background(), "17", rec.PatchFields()))

	method, body := f.last()
	assert.Equal(t, http.MethodPatch, method)
	fields, ok := body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2024-03-15", fields["DateOfInjury"])
	assert.Equal(t, false, fields["AKOSHReportRequired"])
	for _, name := range []string{"AKOSHReportDeadline", "ReportedToSupervisorAt", "ReportedToCSMAt", "TimeOfInjury"} {
		value, present := fields[name]
		assert.True(t, present, name)
		assert.Nil(t, value, name)
	}
}

func TestListFollowsNextLink(t *testing.T) {
	f := newFakeGraph(t)
	items, err := NewClient(f.server.URL, 0).NewSession(delegated, safetySite, ListRef{}).List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "B", items[1].Fields["Title"])
}

func TestErrors(t *testing.T) {
	f := newFakeGraph(t)
	known := ListRef{SiteID: "site-1", ListID: "list-1"}
	ctx := context.Background()
	client := NewClient(f.server.URL, 0)

	t.Run("not found", func(t *testing.T) {
		_, err := client.NewSession(delegated, safetySite, known).Get(ctx, "404")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server error", func(t *testing.T) {
		_, err := client.NewSession(delegated, safetySite, known).Get(ctx, "500")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Contains(t, apiErr.Body, "generalException")
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := client.NewSession(auth.StaticToken("other"), safetySite, known).Get(ctx, "17")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	})

	t.Run("no token", func(t *testing.T) {
		_, err := client.NewSession(auth.StaticToken(""), safetySite, known).Get(ctx, "17")
		assert.ErrorIs(t, err, auth.ErrUnauthenticated)
	})
}

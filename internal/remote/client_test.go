package remote

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", 0)
}

func TestFetchFull(t *testing.T) {
	var gotReq syncRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("auth header = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sync_token": "tok-1",
			"full_sync":  true,
			"projects": []map[string]any{
				{"id": "p1", "name": "Work"},
				{"id": "p2", "name": "Old", "is_archived": true},
			},
			"sections": []map[string]any{
				{"id": "s1", "name": "Dev", "project_id": "p1"},
			},
			"items": []map[string]any{
				{
					"id": "t1", "content": "Fix", "project_id": "p1", "section_id": "s1",
					"priority": 4,
					"due":      map[string]any{"date": "2026-09-01", "string": "sep 1", "is_recurring": false},
					"labels":   []string{"ci"},
				},
				{
					"id": "t2", "content": "Done already", "project_id": "p1",
					"checked": true, "completed_at": "2026-08-20T10:00:00Z",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", testLogger())
	res, err := c.Fetch(context.Background(), "", true)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotReq.SyncToken != "*" {
		t.Errorf("full fetch sync_token = %q, want *", gotReq.SyncToken)
	}
	if len(gotReq.ResourceTypes) != 3 {
		t.Errorf("resource_types = %v", gotReq.ResourceTypes)
	}

	if !res.FullSync || res.NextCursor != "tok-1" {
		t.Errorf("FullSync=%v NextCursor=%q", res.FullSync, res.NextCursor)
	}
	if len(res.Projects) != 2 || len(res.Sections) != 1 || len(res.Tasks) != 2 {
		t.Fatalf("counts = %d/%d/%d", len(res.Projects), len(res.Sections), len(res.Tasks))
	}
	if !res.Projects[1].Archived {
		t.Error("archived flag lost")
	}
	task := res.Tasks[0]
	if task.Priority != 4 || task.Due == nil || task.Due.Date != "2026-09-01" {
		t.Errorf("task fields lost: %+v", task)
	}
	done := res.Tasks[1]
	if !done.Completed || done.CompletedAt.IsZero() {
		t.Errorf("completion lost: %+v", done)
	}
}

func TestFetchIncrementalUsesCursor(t *testing.T) {
	var gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotToken = req.SyncToken
		_ = json.NewEncoder(w).Encode(map[string]any{"sync_token": "tok-2"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", testLogger())
	if _, err := c.Fetch(context.Background(), "tok-1", false); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotToken != "tok-1" {
		t.Errorf("incremental sync_token = %q", gotToken)
	}
}

func TestDispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req syncRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Commands) != 2 {
			t.Errorf("commands = %d", len(req.Commands))
		}
		if req.Commands[0].TempID != "tmp-1" {
			t.Errorf("temp_id = %q", req.Commands[0].TempID)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"sync_token": "tok-3",
			"sync_status": map[string]any{
				"u1": "ok",
				"u2": map[string]any{"error_code": 19, "error": "Invalid argument"},
			},
			"temp_id_mapping": map[string]string{"tmp-1": "9001"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", testLogger())
	res, err := c.Dispatch(context.Background(), []Command{
		{Type: CmdItemAdd, UUID: "u1", TempID: "tmp-1", Args: map[string]any{"content": "New"}},
		{Type: CmdItemUpdate, UUID: "u2", Args: map[string]any{"id": "t1", "priority": 9}},
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if st := res.Status["u1"]; !st.OK {
		t.Errorf("u1 status = %+v", st)
	}
	st := res.Status["u2"]
	if st.OK || st.ErrorCode != 19 || st.ErrorMessage != "Invalid argument" {
		t.Errorf("u2 status = %+v", st)
	}
	if res.TempIDMapping["tmp-1"] != "9001" {
		t.Errorf("temp id mapping = %v", res.TempIDMapping)
	}
	if res.NextCursor != "tok-3" {
		t.Errorf("next cursor = %q", res.NextCursor)
	}
}

func TestTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", testLogger())

	if _, err := c.Fetch(context.Background(), "", true); !IsTransport(err) {
		t.Errorf("fetch error = %v, want transport", err)
	}
	if _, err := c.Dispatch(context.Background(), nil); !IsTransport(err) {
		t.Errorf("dispatch error = %v, want transport", err)
	}

	// Unreachable server is also a transport failure.
	dead := NewClient("http://127.0.0.1:1", "secret", testLogger())
	if _, err := dead.Fetch(context.Background(), "", true); !IsTransport(err) {
		t.Errorf("unreachable error = %v, want transport", err)
	}
}

func TestDecodeStatus(t *testing.T) {
	if st := decodeStatus(json.RawMessage(`"ok"`)); !st.OK {
		t.Errorf("ok status = %+v", st)
	}
	st := decodeStatus(json.RawMessage(`{"error_code": 34, "error": "not found"}`))
	if st.OK || st.ErrorCode != 34 {
		t.Errorf("rejection = %+v", st)
	}
	if st := decodeStatus(json.RawMessage(`[]`)); st.OK || st.ErrorCode == 0 {
		// garbage decodes to a synthetic rejection
		t.Errorf("garbage status = %+v", st)
	}
}

package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// The request bodies below are remote wire contracts. These tests pin the
// exact field names and constant values.

func TestCreateJob_WireContract(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/jobs" {
			t.Errorf("call = %s %s", r.Method, r.URL.Path)
		}
		captured, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"jobId":"j-42"}`)
	}))
	defer srv.Close()

	id, err := testClient(srv).CreateJob(context.Background(), "tok", "a todo app with login")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if id != "j-42" {
		t.Errorf("job id = %q", id)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(captured, &body); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if got := string(body["prompt"]); got != `"a todo app with login"` {
		t.Errorf("prompt = %s", got)
	}
	if got := string(body["files"]); got != `[]` {
		t.Errorf("files = %s, want []", got)
	}
	if got := string(body["ignoreTenantContext"]); got != `true` {
		t.Errorf("ignoreTenantContext = %s, want true", got)
	}
	if len(body) != 3 {
		t.Errorf("body has %d fields, want 3: %s", len(body), captured)
	}
}

func TestCreateJob_MissingIDFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	if _, err := testClient(srv).CreateJob(context.Background(), "tok", "p"); err == nil {
		t.Fatal("CreateJob accepted a response without a job id")
	}
}

func TestCreatePublication_WireContract(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/publications" {
			t.Errorf("call = %s %s", r.Method, r.URL.Path)
		}
		captured, _ = io.ReadAll(r.Body)
		io.WriteString(w, `{"publicationKey":"p-7"}`)
	}))
	defer srv.Close()

	key, err := testClient(srv).CreatePublication(context.Background(), "tok", "app-key-1")
	if err != nil {
		t.Fatalf("CreatePublication: %v", err)
	}
	if key != "p-7" {
		t.Errorf("publication key = %q", key)
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(captured, &body); err != nil {
		t.Fatalf("request body not JSON: %v", err)
	}
	if got := string(body["applicationKey"]); got != `"app-key-1"` {
		t.Errorf("applicationKey = %s", got)
	}
	if got := string(body["applicationRevision"]); got != `1` {
		t.Errorf("applicationRevision = %s, want 1", got)
	}
	if got := string(body["downloadUrl"]); got != `null` {
		t.Errorf("downloadUrl = %s, want null", got)
	}
}

func TestJobStatus_ParsesAppSpec(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/j-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"jobId":"j-1","status":"Done","appSpec":{"appKey":"app-9"}}`)
	}))
	defer srv.Close()

	job, err := testClient(srv).JobStatus(context.Background(), "tok", "j-1")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	if job.Status != JobDone {
		t.Errorf("status = %s", job.Status)
	}
	if job.AppSpec == nil || job.AppSpec.AppKey != "app-9" {
		t.Errorf("appSpec = %+v", job.AppSpec)
	}
}

func TestTriggerGeneration_PostsToGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/jobs/j-1/generate" {
			t.Errorf("call = %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := testClient(srv).TriggerGeneration(context.Background(), "tok", "j-1"); err != nil {
		t.Fatalf("TriggerGeneration: %v", err)
	}
}

func TestApplicationDetails_ParsesURLPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/applications/app-9" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"appKey":"app-9","urlPath":"/p/app-9"}`)
	}))
	defer srv.Close()

	det, err := testClient(srv).ApplicationDetails(context.Background(), "tok", "app-9")
	if err != nil {
		t.Fatalf("ApplicationDetails: %v", err)
	}
	if det.URLPath != "/p/app-9" {
		t.Errorf("urlPath = %q", det.URLPath)
	}
}

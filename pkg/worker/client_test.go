package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != GeneratePath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.UserKey != "alice" {
			t.Errorf("user key %q", req.UserKey)
		}
		json.NewEncoder(w).Encode(Response{Success: true, PageCount: 4, FileSize: "1.2MB"})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Invoke(context.Background(), Request{UserKey: "alice", ImageDir: "alice"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !resp.Success || resp.PageCount != 4 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

// Failure statuses still carry the contract body; the client must surface
// the code, not invent a transport error.
func TestClientParsesFailureBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(Response{Success: false, Error: CodeBatchUnrecoverable})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).Invoke(context.Background(), Request{UserKey: "u", ImageDir: "u"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Error != CodeBatchUnrecoverable {
		t.Fatalf("error code %q, want %q", resp.Error, CodeBatchUnrecoverable)
	}
}

func TestClientReportsUnreachableService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := NewClient(srv.URL).Invoke(context.Background(), Request{UserKey: "u", ImageDir: "u"})
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
}

func TestClientRejectsNonContractBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>proxy error</html>"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Invoke(context.Background(), Request{UserKey: "u", ImageDir: "u"})
	if !errors.Is(err, ErrTransportUnavailable) {
		t.Fatalf("expected ErrTransportUnavailable, got %v", err)
	}
}

func TestLocalInvokerDelegates(t *testing.T) {
	s := newTestService(t)
	dir := seedUserBatch(t, s, "local_user", []string{"x.jpg"})

	resp, err := Local{Service: s}.Invoke(context.Background(), Request{UserKey: "local_user", ImageDir: dir})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !resp.Success || resp.PageCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

package cluster

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestRegisterRequest tests the RegisterRequest JSON layout
func TestRegisterRequest(t *testing.T) {
	req := RegisterRequest{Worker: WorkerInfo{Rank: 3, Addr: "http://localhost:8083"}}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal RegisterRequest: %v", err)
	}

	var jsonMap map[string]map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if jsonMap["worker"]["rank"] != float64(3) {
		t.Errorf("Expected rank 3, got %v", jsonMap["worker"]["rank"])
	}
	if jsonMap["worker"]["addr"] != "http://localhost:8083" {
		t.Errorf("Expected addr 'http://localhost:8083', got %v", jsonMap["worker"]["addr"])
	}

	var decoded RegisterRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal RegisterRequest: %v", err)
	}
	if decoded != req {
		t.Errorf("Expected %+v, got %+v", req, decoded)
	}
}

// TestPostJSON tests JSON posting with and without a response body
func TestPostJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		var req ReduceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		req.Value *= 2
		_ = json.NewEncoder(w).Encode(req)
	}))
	defer server.Close()

	ctx := context.Background()
	var out ReduceRequest
	if err := PostJSON(ctx, server.URL, ReduceRequest{Rank: 2, Value: 21}, &out); err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Value != 42 || out.Rank != 2 {
		t.Errorf("Expected {2 42}, got %+v", out)
	}

	if err := PostJSON(ctx, server.URL, ReduceRequest{}, nil); err != nil {
		t.Errorf("PostJSON without output failed: %v", err)
	}
}

// TestPostJSONErrorStatus tests that non-2xx responses are errors
func TestPostJSONErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusConflict)
	}))
	defer server.Close()

	if err := PostJSON(context.Background(), server.URL, struct{}{}, nil); err == nil {
		t.Error("Expected error for 409 response")
	}
}

// TestPostBytes tests binary posting with the source rank header
func TestPostBytes(t *testing.T) {
	got := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SourceRankHeader) != "7" {
			t.Errorf("Expected rank header 7, got %q", r.Header.Get(SourceRankHeader))
		}
		body, _ := io.ReadAll(r.Body)
		got <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := PostBytes(context.Background(), server.URL, 7, []byte{0, 1, 2}); err != nil {
		t.Fatalf("PostBytes failed: %v", err)
	}
	select {
	case body := <-got:
		if string(body) != "\x00\x01\x02" {
			t.Errorf("Unexpected body %v", body)
		}
	case <-time.After(time.Second):
		t.Fatal("server never received body")
	}
}

// TestPostBytesUnreachable tests transport errors
func TestPostBytesUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := PostBytes(context.Background(), url, 1, nil); err == nil {
		t.Error("Expected error posting to a closed server")
	}
}

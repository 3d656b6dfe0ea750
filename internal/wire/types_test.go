package wire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSONRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg ElectionMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Fatalf("server decode: %v", err)
		}
		if msg.CandidateUID != 7 {
			t.Fatalf("candidate uid = %d, want 7", msg.CandidateUID)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(MembersResponse{Epoch: 3})
	}))
	defer srv.Close()

	var out MembersResponse
	err := PostJSON(context.Background(), srv.URL, ElectionMessage{CandidateUID: 7, OriginUID: 7, Epoch: 3}, &out)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	if out.Epoch != 3 {
		t.Errorf("epoch = %d, want 3", out.Epoch)
	}
}

func TestPostJSONNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "election in progress", http.StatusConflict)
	}))
	defer srv.Close()

	err := PostJSON(context.Background(), srv.URL, RegisterRequest{}, nil)
	if err == nil {
		t.Fatal("expected error for 409 response")
	}
	var ee *ElectionError
	if !asElectionError(err, &ee) {
		t.Fatalf("expected *ElectionError, got %T: %v", err, err)
	}
	if ee.Kind != ErrTransport {
		t.Errorf("kind = %v, want ErrTransport", ee.Kind)
	}
}

func TestGetJSONUnreachable(t *testing.T) {
	err := GetJSON(context.Background(), "http://127.0.0.1:1", nil)
	if err == nil {
		t.Fatal("expected error dialing closed port")
	}
}

func asElectionError(err error, target **ElectionError) bool {
	ee, ok := err.(*ElectionError)
	if ok {
		*target = ee
	}
	return ok
}

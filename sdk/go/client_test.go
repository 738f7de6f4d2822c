package precedentsdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsAuthAndDecodes(t *testing.T) {
	var gotPath, gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery, gotKey = r.URL.Path, r.URL.RawQuery, r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"id": "d1", "title": "Acme", "confidence_level": 4}},
			"count": 1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "pk_test"
	list, err := c.ListDecisions(context.Background(), ListOptions{Tag: "Annual", Sort: "confidence"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if gotPath != "/v1/decisions" || gotKey != "pk_test" {
		t.Fatalf("unexpected request path=%s key=%s", gotPath, gotKey)
	}
	if gotQuery != "sort=confidence&tag=Annual" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if list.Count != 1 || list.Items[0].ConfidenceLevel != 4 {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"validation_failed","message":"invalid title: title is required"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreateDecision(context.Background(), DecisionInput{Title: " "})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "validation_failed" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestDeleteDecisionAcceptsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/decisions/d1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	if err := New(srv.URL).DeleteDecision(context.Background(), "d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

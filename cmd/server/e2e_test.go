//go:build e2e
// +build e2e

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"testing"
	"time"
)

// Runs against a live server with Redis configured:
// LEDGER_BASE_URL=http://localhost:8080 go test -tags e2e ./cmd/server/
func TestIdempotentPaymentE2E(t *testing.T) {
	baseURL := os.Getenv("LEDGER_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	payload := map[string]interface{}{
		"campus_id":      1,
		"payment_method": "cash",
		"amount":         100.00,
		"notes":          "E2E Test Payment",
	}
	jsonData, _ := json.Marshal(payload)
	key := "e2e-test-" + time.Now().Format("20060102150405")

	post := func() map[string]interface{} {
		t.Helper()

		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/transactions", bytes.NewBuffer(jsonData))
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("Failed to create transaction: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("Expected status 201, got %d", resp.StatusCode)
		}

		var result map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		txn, ok := result["transaction"].(map[string]interface{})
		if !ok {
			t.Fatal("Response doesn't contain transaction object")
		}
		return txn
	}

	first := post()
	second := post()

	if first["id"] == nil || first["id"] != second["id"] {
		t.Errorf("replayed id = %v, want %v", second["id"], first["id"])
	}
	if first["display_folio"] == "" || first["display_folio"] != second["display_folio"] {
		t.Errorf("replayed folio = %v, want %v", second["display_folio"], first["display_folio"])
	}

	t.Logf("Transaction created: %v (%v)", first["id"], first["display_folio"])
}

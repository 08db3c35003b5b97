package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arlenko/cellhive/pkg/cellconsensus"
	"github.com/arlenko/cellhive/pkg/hiveid"
	"github.com/arlenko/cellhive/pkg/responsekeeper"
	"github.com/arlenko/cellhive/pkg/txsupervisor"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	cellID := hiveid.NewCellId(1)
	consensus := cellconsensus.NewFake()
	localTx := cellconsensus.NewLocalTxManager()
	ts := cellconsensus.NewMonotonicTimestampProvider()
	cfg := txsupervisor.DefaultConfig(cellID)

	sup := txsupervisor.NewSupervisor(cfg, consensus, localTx, ts, nil, responsekeeper.NewKeeper(16, time.Minute))
	lifecycle := txsupervisor.NewLifecycle(sup)
	lifecycle.Register()
	lifecycle.OnLeaderActive()
	t.Cleanup(func() { lifecycle.Shutdown(context.Background()) })

	adminCfg := DefaultConfig()
	adminCfg.EnableGraphQL = true
	srv, err := New(adminCfg, sup, lifecycle.Decommission())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func makeRequest(t *testing.T, srv *Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestHealthReportsLeaderTrue(t *testing.T) {
	srv := setupTestServer(t)

	rec, body := makeRequest(t, srv, http.MethodGet, "/_health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	result, ok := body["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing result: %v", body)
	}
	if result["leader"] != true {
		t.Fatalf("leader = %v, want true", result["leader"])
	}
}

func TestCommitsStartsEmpty(t *testing.T) {
	srv := setupTestServer(t)

	rec, body := makeRequest(t, srv, http.MethodGet, "/_commits", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	result, ok := body["result"].([]interface{})
	if !ok {
		t.Fatalf("missing result: %v", body)
	}
	if len(result) != 0 {
		t.Fatalf("expected no commits, got %d", len(result))
	}
}

func TestDecommissionLifecycle(t *testing.T) {
	srv := setupTestServer(t)

	rec, _ := makeRequest(t, srv, http.MethodPost, "/_decommission", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger status = %d, want 200", rec.Code)
	}

	rec, body := makeRequest(t, srv, http.MethodGet, "/_decommission", nil)
	result := body["result"].(map[string]interface{})
	if result["decommissioning"] != true {
		t.Fatalf("decommissioning = %v, want true", result["decommissioning"])
	}
	if result["drained"] != true {
		t.Fatalf("drained = %v, want true (no commits yet)", result["drained"])
	}

	rec, _ = makeRequest(t, srv, http.MethodPost, "/_decommission/rescind", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rescind status = %d, want 200", rec.Code)
	}
}

func TestDownedParticipantsEmptyWithNoRegisteredPeers(t *testing.T) {
	srv := setupTestServer(t)

	rec, body := makeRequest(t, srv, http.MethodGet, "/_participants/downed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	result := body["result"].(map[string]interface{})
	downed, _ := result["downed"].([]interface{})
	if len(downed) != 0 {
		t.Fatalf("expected no downed participants, got %v", downed)
	}
}

func TestGraphQLCommitsQuery(t *testing.T) {
	srv := setupTestServer(t)

	reqBody := map[string]interface{}{"query": "{ commits { txId } isLeader }"}
	rec, body := makeRequest(t, srv, http.MethodPost, "/graphql", reqBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	data, ok := body["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing data: %v", body)
	}
	if data["isLeader"] != true {
		t.Fatalf("isLeader = %v, want true", data["isLeader"])
	}
}

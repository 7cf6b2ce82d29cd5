package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/domain"
)

// mockSubmitter 用内存 map 模拟提交服务。
type mockSubmitter struct {
	requests map[string]*domain.Request
}

func (m *mockSubmitter) Submit(_ context.Context, env *domain.CreateRequestEnvelope) (*domain.Request, error) {
	res := env.Resource
	if err := domain.ValidateResource(res.RecordType, res.Domain, res.Target, res.Config); err != nil {
		return nil, err
	}
	env.Context.ApplyDefaults()
	req := domain.NewRequest(res.RecordType, res.Domain, res.Target, res.Comment,
		env.Context.Source, env.Context.AccountID, res.Config)
	m.requests[req.ID] = req
	return req, nil
}

// mockStatus 用内存 map 模拟状态服务。
type mockStatus struct {
	requests map[string]*domain.Request
	records  []*domain.Record
}

func (m *mockStatus) GetStatus(_ context.Context, id string) (*domain.Request, error) {
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

func (m *mockStatus) SetStatus(_ context.Context, id string, status domain.RequestStatus, message string) (*domain.Request, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	if !domain.CanTransition(req.Status, status) {
		return nil, domain.ErrInvalidTransition
	}
	req.Status = status
	return req, nil
}

func (m *mockStatus) ListRecords(_ context.Context, _ string, _ int) ([]*domain.Record, error) {
	return m.records, nil
}

func newTestServer() (*httptest.Server, *mockSubmitter, *mockStatus) {
	requests := make(map[string]*domain.Request)
	sub := &mockSubmitter{requests: requests}
	st := &mockStatus{requests: requests}
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewHandler(sub, st, log)
	return httptest.NewServer(NewRouter(h, log, nil)), sub, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) domain.StatusEnvelope {
	t.Helper()
	defer resp.Body.Close()
	var env domain.StatusEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return env
}

// TestCreateRequest 验证提交接口返回 202 和带默认值的响应信封。
func TestCreateRequest(t *testing.T) {
	srv, _, _ := newTestServer()
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/api/v1/dns/create", map[string]any{
		"context":  map[string]any{"account_id": "acct-1"},
		"resource": map[string]any{"record_type": "A", "domain": "example.com", "target": "1.2.3.4"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	env := decodeEnvelope(t, resp)
	if env.Context.RequestID == "" {
		t.Error("response missing request_id")
	}
	if env.Status != domain.StatusPending {
		t.Errorf("status = %s, want %s", env.Status, domain.StatusPending)
	}
	if env.Context.Partition != domain.DefaultPartition || env.Context.Region != domain.DefaultRegion {
		t.Errorf("context defaults not applied: %+v", env.Context)
	}
}

// TestCreateRequestValidation 验证非法载荷返回 422。
func TestCreateRequestValidation(t *testing.T) {
	srv, _, _ := newTestServer()
	defer srv.Close()

	tests := []struct {
		name     string
		resource map[string]any
	}{
		{"bad record type", map[string]any{"record_type": "SRV", "domain": "example.com", "target": "x"}},
		{"missing domain", map[string]any{"record_type": "A", "target": "1.2.3.4"}},
		{"missing target", map[string]any{"record_type": "A", "domain": "example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/v1/dns/create", map[string]any{
				"context":  map[string]any{"account_id": "acct-1"},
				"resource": tt.resource,
			})
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
			}
		})
	}
}

// TestGetRequestStatus 验证状态查询返回日志序列，未知标识符返回 404。
func TestGetRequestStatus(t *testing.T) {
	srv, _, st := newTestServer()
	defer srv.Close()

	req := domain.NewRequest(domain.RecordTypeA, "example.com", "1.2.3.4", "", "api", "acct-1", nil)
	st.requests[req.ID] = req

	resp, err := http.Get(srv.URL + "/api/v2/dns/" + req.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	env := decodeEnvelope(t, resp)
	if len(env.Log) != 1 {
		t.Errorf("len(log) = %d, want 1", len(env.Log))
	}

	resp, err = http.Get(srv.URL + "/api/v1/dns/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// TestUpdateRequestStatus 验证管理覆盖接口的成功、404 和 409 分支。
func TestUpdateRequestStatus(t *testing.T) {
	srv, _, st := newTestServer()
	defer srv.Close()

	req := domain.NewRequest(domain.RecordTypeA, "example.com", "1.2.3.4", "", "api", "", nil)
	st.requests[req.ID] = req

	// 状态走查询参数，请求体只带日志消息
	resp := postJSON(t, srv.URL+"/api/v1/dns/update_status/"+req.ID+"?status=COMPLETED", map[string]any{"message": "verified"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 终态后再覆盖应 409
	resp = postJSON(t, srv.URL+"/api/v1/dns/update_status/"+req.ID, map[string]any{"status": "FAILED"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}

	resp = postJSON(t, srv.URL+"/api/v1/dns/update_status/nonexistent", map[string]any{"status": "FAILED"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// TestListRecords 验证记录列表接口返回数组与计数。
func TestListRecords(t *testing.T) {
	srv, _, st := newTestServer()
	defer srv.Close()

	req := domain.NewRequest(domain.RecordTypeCNAME, "www.example.com", "example.com", "", "api", "", nil)
	st.records = append(st.records, domain.NewRecordFromRequest(req))

	resp, err := http.Get(srv.URL + "/api/v1/dns/records")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var out struct {
		Records []*domain.Record `json:"records"`
		Count   int              `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 || len(out.Records) != 1 {
		t.Errorf("count = %d, records = %d, want 1", out.Count, len(out.Records))
	}
}

// TestHealth 验证存活探针。
func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer()
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

package bridge

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
	"github.com/oriys/dnsflow/internal/metrics"
)

// mockGateway 记录提交过的信封。
type mockGateway struct {
	submitted []*domain.CreateRequestEnvelope
	err       error
}

func (m *mockGateway) CreateRequest(_ context.Context, env *domain.CreateRequestEnvelope) (*domain.StatusEnvelope, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.submitted = append(m.submitted, env)
	return &domain.StatusEnvelope{
		Context: domain.ResponseContext{RequestID: "req-1"},
		Status:  domain.StatusPending,
	}, nil
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testBridge(gw *mockGateway, namespace string) *Bridge {
	cfg := config.BridgeConfig{DefaultAccountID: "default_account"}
	return New(nil, gw, cfg, metrics.NewCollector(namespace), testLogger())
}

// TestHandleMessageSubmits 验证合法消息被翻译成提交信封。
func TestHandleMessageSubmits(t *testing.T) {
	gw := &mockGateway{}
	b := testBridge(gw, "test_b_submit")

	data := []byte(`{"account_id": "acct-9", "record_type": "A", "domain": "example.com", "target": "1.2.3.4"}`)
	if err := b.handleMessage(context.Background(), data); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	if len(gw.submitted) != 1 {
		t.Fatalf("submitted %d envelopes, want 1", len(gw.submitted))
	}
	env := gw.submitted[0]
	if env.Context.Source != "bridge" {
		t.Errorf("Source = %s, want bridge", env.Context.Source)
	}
	if env.Context.AccountID != "acct-9" {
		t.Errorf("AccountID = %s, want acct-9", env.Context.AccountID)
	}
}

// TestHandleMessageDefaultAccount 验证缺少 account_id 时使用兜底账户。
func TestHandleMessageDefaultAccount(t *testing.T) {
	gw := &mockGateway{}
	b := testBridge(gw, "test_b_default")

	data := []byte(`{"record_type": "TXT", "domain": "example.com", "target": "v=spf1"}`)
	if err := b.handleMessage(context.Background(), data); err != nil {
		t.Fatalf("handleMessage() error = %v", err)
	}
	if gw.submitted[0].Context.AccountID != "default_account" {
		t.Errorf("AccountID = %s, want default_account", gw.submitted[0].Context.AccountID)
	}
}

// TestHandleMessageDropsMalformed 验证损坏或缺字段的消息被丢弃且不提交。
func TestHandleMessageDropsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{not json`},
		{"missing record type", `{"domain": "example.com", "target": "1.2.3.4"}`},
		{"missing domain", `{"record_type": "A", "target": "1.2.3.4"}`},
		{"missing target", `{"record_type": "A", "domain": "example.com"}`},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &mockGateway{}
			b := testBridge(gw, "test_b_malformed_"+string(rune('a'+i)))

			if err := b.handleMessage(context.Background(), []byte(tt.data)); err != nil {
				t.Fatalf("handleMessage() error = %v, malformed message must be dropped, not redelivered", err)
			}
			if len(gw.submitted) != 0 {
				t.Error("malformed message must not be submitted")
			}
		})
	}
}

// TestHandleMessageIsolatesSubmitFailure 验证提交失败不中断消费流。
func TestHandleMessageIsolatesSubmitFailure(t *testing.T) {
	gw := &mockGateway{err: errors.New("gateway down")}
	b := testBridge(gw, "test_b_isolate")

	data := []byte(`{"record_type": "A", "domain": "example.com", "target": "1.2.3.4"}`)
	if err := b.handleMessage(context.Background(), data); err != nil {
		t.Fatalf("handleMessage() error = %v, submit failure must not propagate", err)
	}
}

// Package bridge 实现了外部消息总线到提交接口的接入桥。
// 上游系统把 DNS 开通意图发到接入主题，接入桥翻译成标准提交信封
// 并通过网关 HTTP 接口提交，保证所有入口共享同一套校验和受理路径。
package bridge

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
	"github.com/oriys/dnsflow/internal/metrics"
)

// IngestMessage 是上游系统投递的消息格式。
type IngestMessage struct {
	AccountID  string               `json:"account_id,omitempty"`
	RecordType domain.RecordType    `json:"record_type"`
	Domain     string               `json:"domain"`
	Target     string               `json:"target"`
	Comment    string               `json:"comment,omitempty"`
	Config     *domain.RecordConfig `json:"config,omitempty"`
}

// Submitter 是接入桥对提交入口的依赖，由网关客户端实现。
type Submitter interface {
	CreateRequest(ctx context.Context, env *domain.CreateRequestEnvelope) (*domain.StatusEnvelope, error)
}

// IngestSource 是接入桥对消息来源的依赖。
type IngestSource interface {
	SubscribeIngest(handler func(data []byte) error) error
}

// Bridge 消费接入消息并提交到网关。
type Bridge struct {
	source  IngestSource
	gateway Submitter
	cfg     config.BridgeConfig
	metrics *metrics.Collector
	log     *logrus.Logger
}

// New 创建接入桥。
func New(source IngestSource, gateway Submitter, cfg config.BridgeConfig, m *metrics.Collector, log *logrus.Logger) *Bridge {
	return &Bridge{source: source, gateway: gateway, cfg: cfg, metrics: m, log: log}
}

// Start 注册接入订阅。
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.source.SubscribeIngest(func(data []byte) error {
		return b.handleMessage(ctx, data)
	}); err != nil {
		return err
	}
	b.log.Info("Ingest bridge started")
	return nil
}

// handleMessage 处理一条接入消息。
// 解码失败或缺少必填字段的消息丢弃并记录（返回 nil 确认），
// 单条消息的提交失败同样不中断消费流：记录后确认，由上游告警发现。
func (b *Bridge) handleMessage(ctx context.Context, data []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.metrics.BridgeMessages.WithLabelValues("malformed").Inc()
		b.log.WithError(err).Warn("Dropping malformed ingest message")
		return nil
	}
	if msg.RecordType == "" || msg.Domain == "" || msg.Target == "" {
		b.metrics.BridgeMessages.WithLabelValues("malformed").Inc()
		b.log.WithFields(logrus.Fields{
			"record_type": msg.RecordType,
			"domain":      msg.Domain,
		}).Warn("Dropping ingest message with missing required fields")
		return nil
	}

	accountID := msg.AccountID
	if accountID == "" {
		accountID = b.cfg.DefaultAccountID
	}

	env := &domain.CreateRequestEnvelope{
		Context: domain.RequestContext{
			AccountID: accountID,
			Source:    "bridge",
		},
		Resource: domain.ResourcePayload{
			RecordType: msg.RecordType,
			Domain:     msg.Domain,
			Target:     msg.Target,
			Comment:    msg.Comment,
			Config:     msg.Config,
		},
	}

	resp, err := b.gateway.CreateRequest(ctx, env)
	if err != nil {
		b.metrics.BridgeMessages.WithLabelValues("failed").Inc()
		b.log.WithError(err).WithField("domain", msg.Domain).Error("Failed to submit ingest message")
		return nil
	}

	b.metrics.BridgeMessages.WithLabelValues("submitted").Inc()
	b.log.WithFields(logrus.Fields{
		"request_id": resp.Context.RequestID,
		"domain":     msg.Domain,
		"account_id": accountID,
	}).Info("Ingest message submitted")
	return nil
}

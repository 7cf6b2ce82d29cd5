// Package provisioner 封装了实际的 DNS 记录开通动作。
// 配置了外部命令时调用该命令（通常是 ansible-playbook 的封装脚本），
// 未配置时使用模拟模式，等待固定时长后返回成功，供开发和演示环境使用。
package provisioner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
)

// Provisioner 是开通动作的抽象。
// Provision 是阻塞调用，实现必须尊重 ctx 的取消与超时。
type Provisioner interface {
	Provision(ctx context.Context, req *domain.Request) error
}

// Runner 是 Provisioner 的默认实现。
type Runner struct {
	cfg config.ProvisionerConfig
	log *logrus.Logger
}

// NewRunner 创建开通执行器。
func NewRunner(cfg config.ProvisionerConfig, log *logrus.Logger) *Runner {
	return &Runner{cfg: cfg, log: log}
}

// Provision 执行一次开通动作。
// 请求的资源字段通过 DNSFLOW_* 环境变量传给外部命令；
// 命令以非零码退出、或 ctx 超时/取消时返回错误。
func (r *Runner) Provision(ctx context.Context, req *domain.Request) error {
	if r.cfg.Command == "" {
		return r.simulate(ctx, req)
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, r.cfg.Args...)
	cmd.Env = append(os.Environ(),
		"DNSFLOW_REQUEST_ID="+req.ID,
		"DNSFLOW_RECORD_TYPE="+string(req.RecordType),
		"DNSFLOW_DOMAIN="+req.Domain,
		"DNSFLOW_TARGET="+req.Target,
		"DNSFLOW_TTL="+strconv.Itoa(recordTTL(req)),
	)

	r.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"command":    r.cfg.Command,
	}).Debug("Running provision command")

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("provision timed out: %w", ctx.Err())
		}
		return fmt.Errorf("provision command failed: %w: %s", err, truncate(out, 512))
	}
	return nil
}

// simulate 模拟模式：等待配置的时长后返回成功，等待期间尊重取消。
func (r *Runner) simulate(ctx context.Context, req *domain.Request) error {
	r.log.WithFields(logrus.Fields{
		"request_id": req.ID,
		"domain":     req.Domain,
		"delay":      r.cfg.SimulateDelay,
	}).Debug("Simulating provision action")

	timer := time.NewTimer(r.cfg.SimulateDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("provision cancelled: %w", ctx.Err())
	}
}

// recordTTL 返回请求生效的 TTL，未配置时取默认值。
func recordTTL(req *domain.Request) int {
	if req.Config != nil && req.Config.TTL > 0 {
		return req.Config.TTL
	}
	return domain.DefaultTTL
}

// truncate 截断命令输出，避免把整段 playbook 日志塞进错误信息。
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

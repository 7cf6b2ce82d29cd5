package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestLoadDefaults 验证空配置文件加载后所有默认值就位。
func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.Server.HTTPPort)
	}
	if cfg.Worker.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Worker.Workers)
	}
	if cfg.Worker.ProvisionTimeout != 60*time.Second {
		t.Errorf("ProvisionTimeout = %v, want 60s", cfg.Worker.ProvisionTimeout)
	}
	if cfg.Reconciler.PendingAge != 5*time.Minute {
		t.Errorf("PendingAge = %v, want 5m", cfg.Reconciler.PendingAge)
	}
	if cfg.Queue.NatsURL != "nats://localhost:4222" {
		t.Errorf("NatsURL = %s, want default", cfg.Queue.NatsURL)
	}
	if cfg.Metrics.Namespace != "dnsflow" {
		t.Errorf("Namespace = %s, want dnsflow", cfg.Metrics.Namespace)
	}
}

// TestLoadOverrides 验证文件中的显式值覆盖默认值。
func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9000
worker:
  workers: 8
  provision_timeout: 30s
storage:
  postgres:
    host: db.internal
    password: from-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("HTTPPort = %d, want 9000", cfg.Server.HTTPPort)
	}
	if cfg.Worker.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Worker.Workers)
	}
	if cfg.Worker.ProvisionTimeout != 30*time.Second {
		t.Errorf("ProvisionTimeout = %v, want 30s", cfg.Worker.ProvisionTimeout)
	}
	if cfg.Storage.Postgres.Host != "db.internal" {
		t.Errorf("Host = %s, want db.internal", cfg.Storage.Postgres.Host)
	}
}

// TestEnvOverrides 验证环境变量覆盖文件中的敏感配置。
func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  postgres:
    password: from-file
`)
	t.Setenv("DNSFLOW_POSTGRES_PASSWORD", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Postgres.Password != "from-env" {
		t.Errorf("Password = %s, want from-env", cfg.Storage.Postgres.Password)
	}
}

// TestEnvFileOverrides 验证 _FILE 形式的密钥文件优先于普通环境变量。
func TestEnvFileOverrides(t *testing.T) {
	path := writeConfig(t, "")

	secretPath := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(secretPath, []byte("from-secret-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DNSFLOW_AUTH_JWT_SECRET", "from-env")
	t.Setenv("DNSFLOW_AUTH_JWT_SECRET_FILE", secretPath)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "from-secret-file" {
		t.Errorf("JWTSecret = %s, want from-secret-file", cfg.Auth.JWTSecret)
	}
}

// writeConfig 把 YAML 内容写进临时配置文件。
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

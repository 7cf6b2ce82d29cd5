// Package storage 提供了 DNS 编排平台的持久化层实现。
// PostgreSQL 作为请求与记录的权威存储（真相源），
// Redis 提供终态状态缓存和巡检租约；两者的职责互不重叠。
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
)

// PostgresStore 是基于 PostgreSQL 的请求存储实现。
// 请求的日志序列和配置以 JSONB 列存放，日志追加通过 `log || $n::jsonb`
// 在数据库端完成，保证追加操作与状态变更处于同一条语句或同一个事务。
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewPostgresStore 创建一个 PostgreSQL 存储实例并初始化数据库表结构。
//
// 参数：
//   - cfg: PostgreSQL 配置
//   - log: 日志记录器
//
// 返回值：
//   - *PostgresStore: 存储实例
//   - error: 连接或建表失败时返回错误
func NewPostgresStore(cfg config.PostgresConfig, log *logrus.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// initSchema 初始化数据库表结构。
// dns_records.request_id 上的唯一约束保证一个请求至多派生一条记录。
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS dns_requests (
		id          UUID PRIMARY KEY,
		record_type VARCHAR(16)  NOT NULL,
		domain      VARCHAR(255) NOT NULL,
		target      TEXT         NOT NULL,
		comment     TEXT         NOT NULL DEFAULT '',
		status      VARCHAR(16)  NOT NULL DEFAULT 'PENDING',
		source      VARCHAR(32)  NOT NULL DEFAULT 'api',
		account_id  VARCHAR(128) NOT NULL DEFAULT '',
		config      JSONB,
		log         JSONB        NOT NULL DEFAULT '[]'::jsonb,
		created_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_dns_requests_status ON dns_requests(status);
	CREATE INDEX IF NOT EXISTS idx_dns_requests_created_at ON dns_requests(created_at);

	CREATE TABLE IF NOT EXISTS dns_records (
		id             UUID PRIMARY KEY,
		request_id     UUID NOT NULL UNIQUE REFERENCES dns_requests(id),
		record_type    VARCHAR(16)  NOT NULL,
		domain         VARCHAR(255) NOT NULL,
		target         TEXT         NOT NULL,
		comment        TEXT         NOT NULL DEFAULT '',
		provisioned_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_dns_records_domain ON dns_records(domain);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateRequest 持久化一个新请求。
// 请求的初始日志序列随请求本体一并写入。
func (s *PostgresStore) CreateRequest(ctx context.Context, req *domain.Request) error {
	logJSON, err := json.Marshal(req.Log)
	if err != nil {
		return fmt.Errorf("marshal log: %w", err)
	}
	var cfgJSON []byte
	if req.Config != nil {
		cfgJSON, err = json.Marshal(req.Config)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dns_requests (id, record_type, domain, target, comment, status, source, account_id, config, log, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID, req.RecordType, req.Domain, req.Target, req.Comment,
		req.Status, req.Source, req.AccountID, nullableJSON(cfgJSON), logJSON,
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

// GetRequestByID 按标识符查询请求。
// 未知标识符返回 domain.ErrRequestNotFound。
func (s *PostgresStore) GetRequestByID(ctx context.Context, id string) (*domain.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, record_type, domain, target, comment, status, source, account_id, config, log, created_at, updated_at
		FROM dns_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// CompleteRequest 原子提交开通成功的结果：
// 状态 PENDING→COMPLETED、追加成功日志、创建派生记录，三者在同一个事务中完成。
// WHERE status='PENDING' 充当比较交换，保证同一请求的重复投递只有第一次生效。
//
// 返回值：
//   - bool: 提交是否生效；false 表示请求已不在 PENDING（幂等放弃）
//   - error: 存储层故障
func (s *PostgresStore) CompleteRequest(ctx context.Context, id string, entry domain.LogEntry, rec *domain.Record) (bool, error) {
	entryJSON, err := json.Marshal([]domain.LogEntry{entry})
	if err != nil {
		return false, fmt.Errorf("marshal log entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE dns_requests
		SET status = $1, log = log || $2::jsonb, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		domain.StatusCompleted, entryJSON, id, domain.StatusPending)
	if err != nil {
		return false, fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// 请求已不在 PENDING，放弃提交，记录不落库
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dns_records (id, request_id, record_type, domain, target, comment, provisioned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RequestID, rec.RecordType, rec.Domain, rec.Target, rec.Comment, rec.ProvisionedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, domain.ErrDuplicateRecord
		}
		return false, fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// FailRequest 原子提交开通失败的结果：状态 PENDING→FAILED 并追加错误日志。
// 与 CompleteRequest 相同的比较交换语义。
func (s *PostgresStore) FailRequest(ctx context.Context, id string, entry domain.LogEntry) (bool, error) {
	return s.transition(ctx, id, domain.StatusPending, domain.StatusFailed, entry)
}

// OverrideStatus 是管理接口的状态覆盖：在 from 状态上比较交换为 to，并追加日志。
// 调用方负责先用 domain.CanTransition 裁决转换合法性。
func (s *PostgresStore) OverrideStatus(ctx context.Context, id string, from, to domain.RequestStatus, entry domain.LogEntry) (bool, error) {
	return s.transition(ctx, id, from, to, entry)
}

// transition 在指定状态上做比较交换式的状态变更并追加日志。
func (s *PostgresStore) transition(ctx context.Context, id string, from, to domain.RequestStatus, entry domain.LogEntry) (bool, error) {
	entryJSON, err := json.Marshal([]domain.LogEntry{entry})
	if err != nil {
		return false, fmt.Errorf("marshal log entry: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE dns_requests
		SET status = $1, log = log || $2::jsonb, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		to, entryJSON, id, from)
	if err != nil {
		return false, fmt.Errorf("update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AppendRequestLog 向请求的日志序列追加一条记录，不改变状态。
func (s *PostgresStore) AppendRequestLog(ctx context.Context, id string, entry domain.LogEntry) error {
	entryJSON, err := json.Marshal([]domain.LogEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE dns_requests SET log = log || $1::jsonb, updated_at = NOW() WHERE id = $2`,
		entryJSON, id)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

// ListPendingOlderThan 列出创建时间早于 cutoff 且仍处于 PENDING 的请求标识符。
// 巡检用它找出滞留请求重新入队。
func (s *PostgresStore) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM dns_requests
		WHERE status = $1 AND updated_at < $2
		ORDER BY created_at ASC
		LIMIT $3`,
		domain.StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListRecords 列出已开通的记录，按开通时间倒序。
// dnsDomain 非空时按域名过滤。
func (s *PostgresStore) ListRecords(ctx context.Context, dnsDomain string, limit int) ([]*domain.Record, error) {
	query := `
		SELECT id, request_id, record_type, domain, target, comment, provisioned_at
		FROM dns_records`
	args := []any{}
	if dnsDomain != "" {
		query += ` WHERE domain = $1`
		args = append(args, dnsDomain)
	}
	query += fmt.Sprintf(` ORDER BY provisioned_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		rec := &domain.Record{}
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.RecordType, &rec.Domain, &rec.Target, &rec.Comment, &rec.ProvisionedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByStatus 统计各状态的请求数，用于 pending 量规的周期刷新。
func (s *PostgresStore) CountByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM dns_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RequestStatus]int)
	for rows.Next() {
		var status domain.RequestStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Ping 检查数据库连通性，供就绪探针使用。
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 关闭数据库连接池。
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// scanRequest 从查询结果扫描出一个请求对象，反序列化 JSONB 列。
func scanRequest(row *sql.Row) (*domain.Request, error) {
	req := &domain.Request{}
	var cfgJSON, logJSON []byte
	err := row.Scan(&req.ID, &req.RecordType, &req.Domain, &req.Target, &req.Comment,
		&req.Status, &req.Source, &req.AccountID, &cfgJSON, &logJSON,
		&req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}

	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &req.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(logJSON) > 0 {
		if err := json.Unmarshal(logJSON, &req.Log); err != nil {
			return nil, fmt.Errorf("unmarshal log: %w", err)
		}
	}
	return req, nil
}

// nullableJSON 将空字节切片转为 SQL NULL。
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// isUniqueViolation 判断错误是否为唯一约束冲突（SQLSTATE 23505）。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

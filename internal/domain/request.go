// Package domain 定义了 DNS 编排平台的核心领域模型。
// 该包包含了 DNS 请求、记录、日志条目等核心实体的定义，以及状态机和相关的校验逻辑。
// 这是整个应用程序的领域层，不依赖任何存储或传输实现。
package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus 表示 DNS 请求的状态类型。
// 请求在其生命周期中单向前进：PENDING 是唯一的初始状态，
// COMPLETED 和 FAILED 是终态，终态之后不允许任何转换。
type RequestStatus string

// 请求状态常量定义
const (
	// StatusPending 表示请求已受理，等待异步开通
	StatusPending RequestStatus = "PENDING"
	// StatusCompleted 表示 DNS 记录已成功开通
	StatusCompleted RequestStatus = "COMPLETED"
	// StatusFailed 表示开通动作执行失败
	StatusFailed RequestStatus = "FAILED"
)

// Valid 判断状态值是否为已知状态。
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal 判断状态是否为终态。
// 终态的请求不会再被工作进程处理，也不允许管理接口回退。
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition 判断状态转换是否合法。
// 合法的转换只有 PENDING→COMPLETED 和 PENDING→FAILED；
// 该函数是状态机的唯一裁决点，工作进程的提交和管理接口的覆盖都必须经过它。
func CanTransition(from, to RequestStatus) bool {
	return from == StatusPending && to.Terminal()
}

// RecordType 表示 DNS 记录类型，取值限定在有限的枚举内。
type RecordType string

// 支持的记录类型常量定义
const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeMX    RecordType = "MX"
	RecordTypeTXT   RecordType = "TXT"
)

// Valid 判断记录类型是否受支持。
func (t RecordType) Valid() bool {
	switch t {
	case RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeMX, RecordTypeTXT:
		return true
	}
	return false
}

// LogSeverity 表示单条日志的级别标签。
type LogSeverity string

// 日志级别常量定义
const (
	// LogInfo 过程性日志，如"请求已受理"
	LogInfo LogSeverity = "INFO"
	// LogSuccess 开通成功的终结日志
	LogSuccess LogSeverity = "SUCCESS"
	// LogError 开通失败的终结日志，message 中包含失败原因
	LogError LogSeverity = "ERROR"
)

// LogEntry 表示请求日志序列中的一条记录。
// 日志序列按追加时间严格有序，长度只增不减；
// 终态请求的最后一条日志必然是与状态对应的终结日志。
type LogEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Severity  LogSeverity `json:"severity"`
	Message   string      `json:"message"`
}

// NewLogEntry 创建一条带当前时间戳的日志。
func NewLogEntry(severity LogSeverity, message string) LogEntry {
	return LogEntry{
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Message:   message,
	}
}

// DefaultTTL 是未显式指定时 DNS 记录的 time-to-live（秒）。
const DefaultTTL = 300

// Request 表示一次可追踪的 DNS 记录开通意图。
// 请求由提交服务创建（状态 PENDING，带一条"received"日志），
// 之后只会被工作进程推进到终态，或被管理接口显式覆盖；请求永不删除。
type Request struct {
	// ID 是请求的全局唯一标识符，创建时分配且不可变
	ID string `json:"id"`
	// RecordType 是要开通的 DNS 记录类型
	RecordType RecordType `json:"record_type"`
	// Domain 是记录的域名
	Domain string `json:"domain"`
	// Target 是记录指向的目标值（IP、主机名或文本）
	Target string `json:"target"`
	// Comment 是可选的自由文本备注
	Comment string `json:"comment,omitempty"`
	// Status 是请求的当前状态
	Status RequestStatus `json:"status"`
	// Source 标识请求来源，如 "api"、"bridge"、"cli"
	Source string `json:"source"`
	// AccountID 是提交方的账户标识，用于响应信封回显
	AccountID string `json:"account_id,omitempty"`
	// Config 是可选的记录配置（TTL、优先级及任意扩展键值）
	Config *RecordConfig `json:"config,omitempty"`
	// Log 是只追加的日志序列
	Log []LogEntry `json:"log"`
	// CreatedAt 是请求创建时间
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt 是请求最后一次变更时间
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRequest 创建一个处于 PENDING 状态的新请求。
// 会分配新的 UUID、规范化配置（填充默认 TTL），并追加初始的"received"日志。
func NewRequest(recordType RecordType, dnsDomain, target, comment, source, accountID string, cfg *RecordConfig) *Request {
	now := time.Now().UTC()
	if cfg != nil {
		cfg.Normalize()
	}
	return &Request{
		ID:         uuid.New().String(),
		RecordType: recordType,
		Domain:     dnsDomain,
		Target:     target,
		Comment:    comment,
		Status:     StatusPending,
		Source:     source,
		AccountID:  accountID,
		Config:     cfg,
		Log: []LogEntry{
			NewLogEntry(LogInfo, "Received new DNS request."),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendLog 向请求的日志序列追加一条记录并刷新更新时间。
func (r *Request) AppendLog(severity LogSeverity, message string) {
	r.Log = append(r.Log, NewLogEntry(severity, message))
	r.UpdatedAt = time.Now().UTC()
}

// Terminal 判断请求是否已处于终态。
func (r *Request) Terminal() bool {
	return r.Status.Terminal()
}

// ValidateResource 校验提交载荷中的资源字段。
// 记录类型必须在枚举内，domain 和 target 必须为非空字符串，
// 配置中的 TTL（若显式给出）必须为正数。扩展键值不做校验，原样保留。
func ValidateResource(recordType RecordType, dnsDomain, target string, cfg *RecordConfig) error {
	if !recordType.Valid() {
		return ErrInvalidRecordType
	}
	if dnsDomain == "" {
		return ErrMissingDomain
	}
	if target == "" {
		return ErrMissingTarget
	}
	if cfg != nil && cfg.TTL < 0 {
		return ErrInvalidTTL
	}
	return nil
}

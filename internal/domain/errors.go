package domain

import "errors"

// 领域错误定义
// 这些错误用于在应用程序的不同层之间传递业务逻辑相关的错误信息。

var (
	// ========== 提交校验相关错误 ==========

	// ErrInvalidRecordType 表示记录类型不在受支持的枚举内
	ErrInvalidRecordType = errors.New("invalid record type")
	// ErrMissingDomain 表示提交载荷缺少 domain 字段
	ErrMissingDomain = errors.New("domain is required")
	// ErrMissingTarget 表示提交载荷缺少 target 字段
	ErrMissingTarget = errors.New("target is required")
	// ErrInvalidTTL 表示配置中的 TTL 不是正数
	ErrInvalidTTL = errors.New("ttl must be a positive integer")

	// ========== 请求状态相关错误 ==========

	// ErrRequestNotFound 表示请求标识符未知
	ErrRequestNotFound = errors.New("dns request not found")
	// ErrInvalidStatus 表示给出的状态值不是已知状态
	ErrInvalidStatus = errors.New("invalid status value")
	// ErrInvalidTransition 表示状态转换违反单向前进约束（如 COMPLETED→PENDING）
	ErrInvalidTransition = errors.New("invalid status transition")

	// ========== 记录相关错误 ==========

	// ErrDuplicateRecord 表示同一请求已存在派生记录
	ErrDuplicateRecord = errors.New("record already exists for request")
)

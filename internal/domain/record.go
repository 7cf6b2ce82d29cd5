package domain

import (
	"time"

	"github.com/google/uuid"
)

// Record 表示一条已成功开通的 DNS 记录，是 COMPLETED 请求的派生产物。
// 一个请求至多派生一条记录（request_id 唯一）；
// 记录的创建与请求转入 COMPLETED 必须在同一个事务中提交。
type Record struct {
	// ID 记录的唯一标识符
	ID string `json:"id"`
	// RequestID 反向引用产生该记录的请求
	RequestID string `json:"request_id"`
	// RecordType 记录类型，复制自请求
	RecordType RecordType `json:"record_type"`
	// Domain 域名
	Domain string `json:"domain"`
	// Target 目标值
	Target string `json:"target"`
	// Comment 备注
	Comment string `json:"comment,omitempty"`
	// ProvisionedAt 开通完成时间
	ProvisionedAt time.Time `json:"provisioned_at"`
}

// NewRecordFromRequest 从已完成开通动作的请求构建对应的记录。
func NewRecordFromRequest(req *Request) *Record {
	return &Record{
		ID:            uuid.New().String(),
		RequestID:     req.ID,
		RecordType:    req.RecordType,
		Domain:        req.Domain,
		Target:        req.Target,
		Comment:       req.Comment,
		ProvisionedAt: time.Now().UTC(),
	}
}

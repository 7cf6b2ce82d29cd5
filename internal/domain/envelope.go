package domain

// RequestContext 是提交请求的上下文部分，结构上类似 AWS ARN 的分段。
// partition/service/region 未指定时由服务端填充默认值。
type RequestContext struct {
	// AccountID 提交方账户标识，必填
	AccountID string `json:"account_id"`
	// Source 请求来源标签，默认 "api"
	Source string `json:"source,omitempty"`
	// Partition 资源分区，默认 "dns"
	Partition string `json:"partition,omitempty"`
	// Service 服务命名空间，默认 "orchestrator"
	Service string `json:"service,omitempty"`
	// Region 区域，默认 "global"
	Region string `json:"region,omitempty"`
}

// 上下文默认值
const (
	DefaultPartition = "dns"
	DefaultService   = "orchestrator"
	DefaultRegion    = "global"
	DefaultSource    = "api"
)

// ApplyDefaults 为未指定的上下文字段填充默认值。
func (c *RequestContext) ApplyDefaults() {
	if c.Source == "" {
		c.Source = DefaultSource
	}
	if c.Partition == "" {
		c.Partition = DefaultPartition
	}
	if c.Service == "" {
		c.Service = DefaultService
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
}

// ResourcePayload 是提交请求的资源部分。
type ResourcePayload struct {
	RecordType RecordType    `json:"record_type"`
	Domain     string        `json:"domain"`
	Target     string        `json:"target"`
	Comment    string        `json:"comment,omitempty"`
	Config     *RecordConfig `json:"config,omitempty"`
}

// CreateRequestEnvelope 是提交接口的完整请求体。
type CreateRequestEnvelope struct {
	Context  RequestContext  `json:"context"`
	Resource ResourcePayload `json:"resource"`
}

// ResponseContext 是响应信封的上下文部分。
type ResponseContext struct {
	RequestID string `json:"request_id"`
	Partition string `json:"partition"`
	Service   string `json:"service"`
	Region    string `json:"region"`
	AccountID string `json:"account_id,omitempty"`
}

// StatusEnvelope 是提交/查询/覆盖接口共用的响应体。
// Log 仅在状态查询时返回。
type StatusEnvelope struct {
	Context ResponseContext `json:"context"`
	Status  RequestStatus   `json:"status"`
	Message string          `json:"message"`
	Log     []LogEntry      `json:"log,omitempty"`
}

// NewResponseContext 从请求构建响应上下文，partition/service/region 取默认值。
func NewResponseContext(req *Request) ResponseContext {
	return ResponseContext{
		RequestID: req.ID,
		Partition: DefaultPartition,
		Service:   DefaultService,
		Region:    DefaultRegion,
		AccountID: req.AccountID,
	}
}

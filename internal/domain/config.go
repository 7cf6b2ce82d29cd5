package domain

import "encoding/json"

// RecordConfig 是 DNS 记录的可选配置。
// 已知字段为 TTL 和 Priority；除此之外提交方给出的任何未识别键
// 都会被原样收进 Extra，不做校验，随请求一起持久化。
type RecordConfig struct {
	// TTL 记录的 time-to-live（秒），必须为正数，未指定时默认 300
	TTL int `json:"ttl,omitempty"`
	// Priority MX/SRV 等记录的优先级，可选
	Priority *int `json:"priority,omitempty"`
	// Extra 任意扩展键值，透传不校验
	Extra map[string]any `json:"extra,omitempty"`
}

// Normalize 填充默认值。TTL 未指定（零值）时设为 DefaultTTL。
func (c *RecordConfig) Normalize() {
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
}

// UnmarshalJSON 自定义反序列化，保证未识别的顶层键不丢失。
// 除 ttl/priority/extra 之外的键会被合并进 Extra。
func (c *RecordConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["ttl"]; ok {
		if err := json.Unmarshal(v, &c.TTL); err != nil {
			return err
		}
	}
	if v, ok := raw["priority"]; ok {
		if err := json.Unmarshal(v, &c.Priority); err != nil {
			return err
		}
	}
	if v, ok := raw["extra"]; ok {
		if err := json.Unmarshal(v, &c.Extra); err != nil {
			return err
		}
	}

	// 未识别的键并入 Extra，原样保留
	for k, v := range raw {
		switch k {
		case "ttl", "priority", "extra":
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if c.Extra == nil {
			c.Extra = make(map[string]any)
		}
		c.Extra[k] = val
	}
	return nil
}

// Package gatewayclient 提供了访问网关 HTTP 接口的客户端。
// 接入桥和命令行工具通过它提交请求、查询状态，
// 保证所有入口都走同一套受理路径。
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oriys/dnsflow/internal/domain"
)

// Client 是网关 HTTP 客户端。
type Client struct {
	baseURL string
	version string
	http    *http.Client
}

// New 创建网关客户端，默认走 v1 接口。
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		version: "v1",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// WithVersion 返回使用指定 API 版本的客户端副本。
func (c *Client) WithVersion(version string) *Client {
	clone := *c
	clone.version = version
	return &clone
}

// CreateRequest 提交一个 DNS 开通请求。
func (c *Client) CreateRequest(ctx context.Context, env *domain.CreateRequestEnvelope) (*domain.StatusEnvelope, error) {
	var out domain.StatusEnvelope
	if err := c.do(ctx, http.MethodPost, c.path("dns/create"), env, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetStatus 查询请求状态。
func (c *Client) GetStatus(ctx context.Context, id string) (*domain.StatusEnvelope, error) {
	var out domain.StatusEnvelope
	if err := c.do(ctx, http.MethodGet, c.path("dns/"+id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateStatus 管理接口：把请求显式置为终态。
func (c *Client) UpdateStatus(ctx context.Context, id string, status domain.RequestStatus, message string) (*domain.StatusEnvelope, error) {
	payload := map[string]any{"status": status, "message": message}
	var out domain.StatusEnvelope
	if err := c.do(ctx, http.MethodPost, c.path("dns/update_status/"+id), payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecords 列出已开通的记录。
func (c *Client) ListRecords(ctx context.Context, dnsDomain string, limit int) ([]*domain.Record, error) {
	q := url.Values{}
	if dnsDomain != "" {
		q.Set("domain", dnsDomain)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := c.path("dns/records")
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out struct {
		Records []*domain.Record `json:"records"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// path 拼接版本化的接口路径。
func (c *Client) path(suffix string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.baseURL, c.version, suffix)
}

// do 执行一次 HTTP 调用：编码请求体、检查状态码、解码响应体。
// 非 2xx 响应转为带服务端错误信息的 error。
func (c *Client) do(ctx context.Context, method, rawURL string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

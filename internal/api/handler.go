// Package api 实现了 DNS 编排平台的 HTTP 接口层。
// 路由按版本前缀挂载（/api/v1、/api/v2），两个版本共享同一套处理器；
// 处理器只做解码、调用服务层、编码，不含业务逻辑。
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/domain"
)

// Submitter 是接口层对提交服务的依赖。
type Submitter interface {
	Submit(ctx context.Context, env *domain.CreateRequestEnvelope) (*domain.Request, error)
}

// StatusReader 是接口层对状态服务的依赖。
type StatusReader interface {
	GetStatus(ctx context.Context, id string) (*domain.Request, error)
	SetStatus(ctx context.Context, id string, status domain.RequestStatus, message string) (*domain.Request, error)
	ListRecords(ctx context.Context, dnsDomain string, limit int) ([]*domain.Record, error)
}

// Pinger 是就绪探针对存储依赖的抽象。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler 持有所有 HTTP 处理器的依赖。
type Handler struct {
	submission Submitter
	status     StatusReader
	pingers    []Pinger
	log        *logrus.Logger
}

// NewHandler 创建 HTTP 处理器。
// pingers 是就绪探针要检查的后端依赖（数据库、缓存）。
func NewHandler(submission Submitter, status StatusReader, log *logrus.Logger, pingers ...Pinger) *Handler {
	return &Handler{submission: submission, status: status, pingers: pingers, log: log}
}

// CreateRequest 处理 POST /api/{version}/dns/create
// 受理一个新的 DNS 开通请求，返回 200 和请求标识符。
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var env domain.CreateRequestEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := h.submission.Submit(r.Context(), &env)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidRecordType),
			errors.Is(err, domain.ErrMissingDomain),
			errors.Is(err, domain.ErrMissingTarget),
			errors.Is(err, domain.ErrInvalidTTL):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.log.WithError(err).Error("Failed to accept DNS request")
			writeError(w, http.StatusInternalServerError, "failed to accept request")
		}
		return
	}

	writeJSON(w, http.StatusOK, domain.StatusEnvelope{
		Context: domain.NewResponseContext(req),
		Status:  req.Status,
		Message: "DNS request accepted for processing.",
	})
}

// GetRequestStatus 处理 GET /api/{version}/dns/{id}
// 返回请求的当前状态和完整日志序列。
func (h *Handler) GetRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.status.GetStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRequestNotFound) {
			writeError(w, http.StatusNotFound, "dns request not found")
			return
		}
		h.log.WithError(err).Error("Failed to fetch request status")
		writeError(w, http.StatusInternalServerError, "failed to fetch status")
		return
	}

	writeJSON(w, http.StatusOK, domain.StatusEnvelope{
		Context: domain.NewResponseContext(req),
		Status:  req.Status,
		Message: statusMessage(req.Status),
		Log:     req.Log,
	})
}

// updateStatusPayload 是管理覆盖接口的请求体。
type updateStatusPayload struct {
	Status  domain.RequestStatus `json:"status"`
	Message string               `json:"message,omitempty"`
}

// UpdateRequestStatus 处理 POST /api/{version}/dns/update_status/{id}?status=S
// 管理接口：把 PENDING 请求显式置为终态。
// 状态取 status 查询参数；请求体可选，用于携带日志消息。
func (h *Handler) UpdateRequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var payload updateStatusPayload
	if r.Body != nil {
		// 空请求体合法，解码失败只在真的给了损坏 JSON 时报错
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if s := r.URL.Query().Get("status"); s != "" {
		payload.Status = domain.RequestStatus(s)
	}

	req, err := h.status.SetStatus(r.Context(), id, payload.Status, payload.Message)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "dns request not found")
		case errors.Is(err, domain.ErrInvalidStatus):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.log.WithError(err).Error("Failed to update request status")
			writeError(w, http.StatusInternalServerError, "failed to update status")
		}
		return
	}

	writeJSON(w, http.StatusOK, domain.StatusEnvelope{
		Context: domain.NewResponseContext(req),
		Status:  req.Status,
		Message: "Status updated.",
	})
}

// recordsResponse 是记录列表接口的响应体。
type recordsResponse struct {
	Records []*domain.Record `json:"records"`
	Count   int              `json:"count"`
}

// ListRecords 处理 GET /api/{version}/dns/records
// 列出已开通的记录，支持 domain 和 limit 查询参数。
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	dnsDomain := r.URL.Query().Get("domain")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.status.ListRecords(r.Context(), dnsDomain, limit)
	if err != nil {
		h.log.WithError(err).Error("Failed to list records")
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []*domain.Record{}
	}
	writeJSON(w, http.StatusOK, recordsResponse{Records: records, Count: len(records)})
}

// Health 处理 GET /health，进程存活即返回 200。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready 处理 GET /ready，逐个检查后端依赖的连通性。
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	for _, p := range h.pingers {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "dependency not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// statusMessage 返回状态对应的人类可读描述。
func statusMessage(s domain.RequestStatus) string {
	switch s {
	case domain.StatusPending:
		return "DNS request is pending."
	case domain.StatusCompleted:
		return "DNS record has been provisioned."
	case domain.StatusFailed:
		return "DNS provisioning failed."
	}
	return "Unknown status."
}

// errorResponse 是统一的错误响应体。
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON 以 JSON 编码写出响应。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError 以统一格式写出错误响应。
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

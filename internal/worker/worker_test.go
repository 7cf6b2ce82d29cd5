package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oriys/dnsflow/internal/config"
	"github.com/oriys/dnsflow/internal/domain"
	"github.com/oriys/dnsflow/internal/metrics"
	"github.com/oriys/dnsflow/internal/queue"
)

// mockStore 按标识符存请求，模拟比较交换式的终态提交。
type mockStore struct {
	mu          sync.Mutex
	requests    map[string]*domain.Request
	records     map[string]*domain.Record
	completeErr error
	failErr     error
	failCalls   int
}

func newMockStore() *mockStore {
	return &mockStore{
		requests: make(map[string]*domain.Request),
		records:  make(map[string]*domain.Record),
	}
}

func (m *mockStore) GetRequestByID(_ context.Context, id string) (*domain.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, domain.ErrRequestNotFound
	}
	return req, nil
}

func (m *mockStore) CompleteRequest(_ context.Context, id string, entry domain.LogEntry, rec *domain.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return false, m.completeErr
	}
	req, ok := m.requests[id]
	if !ok || req.Status != domain.StatusPending {
		return false, nil
	}
	req.Status = domain.StatusCompleted
	req.Log = append(req.Log, entry)
	m.records[id] = rec
	return true, nil
}

func (m *mockStore) FailRequest(_ context.Context, id string, entry domain.LogEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCalls++
	if m.failErr != nil {
		return false, m.failErr
	}
	req, ok := m.requests[id]
	if !ok || req.Status != domain.StatusPending {
		return false, nil
	}
	req.Status = domain.StatusFailed
	req.Log = append(req.Log, entry)
	return true, nil
}

// fakeProvisioner 按预设结果执行开通。
type fakeProvisioner struct {
	err   error
	calls int
}

func (f *fakeProvisioner) Provision(_ context.Context, _ *domain.Request) error {
	f.calls++
	return f.err
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Workers:          1,
		ProvisionTimeout: time.Second,
		CommitRetries:    2,
		CommitBackoff:    time.Millisecond,
	}
}

func pendingRequest(store *mockStore) *domain.Request {
	req := domain.NewRequest(domain.RecordTypeA, "example.com", "1.2.3.4", "", "api", "", nil)
	store.requests[req.ID] = req
	return req
}

// TestProcessCompletes 验证开通成功后请求转入 COMPLETED 且派生记录。
func TestProcessCompletes(t *testing.T) {
	store := newMockStore()
	prov := &fakeProvisioner{}
	w := New(store, nil, prov, testWorkerConfig(), metrics.NewCollector("test_w_complete"), testLogger())

	req := pendingRequest(store)
	if err := w.process(context.Background(), queue.ProvisionJob{RequestID: req.ID}); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	if req.Status != domain.StatusCompleted {
		t.Errorf("Status = %s, want %s", req.Status, domain.StatusCompleted)
	}
	rec, ok := store.records[req.ID]
	if !ok {
		t.Fatal("no record derived from completed request")
	}
	if rec.Domain != req.Domain || rec.RecordType != req.RecordType {
		t.Errorf("record fields do not match request: %+v", rec)
	}
	last := req.Log[len(req.Log)-1]
	if last.Severity != domain.LogSuccess {
		t.Errorf("last log severity = %s, want %s", last.Severity, domain.LogSuccess)
	}
}

// TestProcessFails 验证开通失败后请求转入 FAILED，
// 且最后一条日志是携带失败原因的错误日志。
func TestProcessFails(t *testing.T) {
	store := newMockStore()
	prov := &fakeProvisioner{err: errors.New("upstream timeout")}
	w := New(store, nil, prov, testWorkerConfig(), metrics.NewCollector("test_w_fail"), testLogger())

	req := pendingRequest(store)
	if err := w.process(context.Background(), queue.ProvisionJob{RequestID: req.ID}); err != nil {
		t.Fatalf("process() error = %v", err)
	}

	if req.Status != domain.StatusFailed {
		t.Errorf("Status = %s, want %s", req.Status, domain.StatusFailed)
	}
	if _, ok := store.records[req.ID]; ok {
		t.Error("failed request must not derive a record")
	}
	last := req.Log[len(req.Log)-1]
	if last.Severity != domain.LogError {
		t.Errorf("last log severity = %s, want %s", last.Severity, domain.LogError)
	}
	if !strings.Contains(last.Message, "upstream timeout") {
		t.Errorf("last log message = %q, want it to carry the failure reason", last.Message)
	}
}

// TestProcessDropsTerminal 验证已终态请求的重复投递被确认丢弃，不重复开通。
func TestProcessDropsTerminal(t *testing.T) {
	store := newMockStore()
	prov := &fakeProvisioner{}
	w := New(store, nil, prov, testWorkerConfig(), metrics.NewCollector("test_w_terminal"), testLogger())

	req := pendingRequest(store)
	req.Status = domain.StatusCompleted
	logLen := len(req.Log)

	if err := w.process(context.Background(), queue.ProvisionJob{RequestID: req.ID}); err != nil {
		t.Fatalf("process() error = %v, duplicate delivery must ack", err)
	}
	if prov.calls != 0 {
		t.Errorf("Provision called %d times on terminal request, want 0", prov.calls)
	}
	if len(req.Log) != logLen {
		t.Error("duplicate delivery must not append log entries")
	}
}

// TestProcessDropsUnknown 验证引用未知请求的任务被确认丢弃。
func TestProcessDropsUnknown(t *testing.T) {
	store := newMockStore()
	prov := &fakeProvisioner{}
	w := New(store, nil, prov, testWorkerConfig(), metrics.NewCollector("test_w_unknown"), testLogger())

	if err := w.process(context.Background(), queue.ProvisionJob{RequestID: "nonexistent"}); err != nil {
		t.Fatalf("process() error = %v, unknown request must ack", err)
	}
	if prov.calls != 0 {
		t.Errorf("Provision called %d times on unknown request, want 0", prov.calls)
	}
}

// mockConsumer 记录注册的并发消费数并保存处理函数。
type mockConsumer struct {
	workers int
	handler func(job queue.ProvisionJob) error
}

func (m *mockConsumer) ConsumeJobs(workers int, handler func(job queue.ProvisionJob) error) error {
	m.workers = workers
	m.handler = handler
	return nil
}

// TestStartRegistersConfiguredWorkers 验证 Start 按配置的并发数注册消费。
func TestStartRegistersConfiguredWorkers(t *testing.T) {
	store := newMockStore()
	consumer := &mockConsumer{}
	cfg := testWorkerConfig()
	cfg.Workers = 4
	w := New(store, consumer, &fakeProvisioner{}, cfg, metrics.NewCollector("test_w_pool_size"), testLogger())

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if consumer.workers != 4 {
		t.Errorf("registered %d consumers, want configured 4", consumer.workers)
	}
	if consumer.handler == nil {
		t.Fatal("Start() did not register a job handler")
	}
}

// barrierProvisioner 阻塞到全部并发调用都进入后才返回，
// 串行处理时调用无法凑齐，测试会超时失败。
type barrierProvisioner struct {
	arrived chan struct{}
	release chan struct{}
}

func (b *barrierProvisioner) Provision(ctx context.Context, _ *domain.Request) error {
	b.arrived <- struct{}{}
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TestProcessRunsConcurrently 验证处理逻辑可并发执行：
// 多条任务的开通动作同时在途，慢任务不阻塞其他任务。
func TestProcessRunsConcurrently(t *testing.T) {
	const parallel = 3

	store := newMockStore()
	prov := &barrierProvisioner{
		arrived: make(chan struct{}, parallel),
		release: make(chan struct{}),
	}
	cfg := testWorkerConfig()
	cfg.ProvisionTimeout = 5 * time.Second
	w := New(store, nil, prov, cfg, metrics.NewCollector("test_w_concurrent"), testLogger())

	var reqs []*domain.Request
	for i := 0; i < parallel; i++ {
		reqs = append(reqs, pendingRequest(store))
	}

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := w.process(context.Background(), queue.ProvisionJob{RequestID: id}); err != nil {
				t.Errorf("process(%s) error = %v", id, err)
			}
		}(req.ID)
	}

	// 等待所有开通动作同时在途，再放行
	for i := 0; i < parallel; i++ {
		select {
		case <-prov.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d provision actions in flight, processing is serialized", i, parallel)
		}
	}
	close(prov.release)
	wg.Wait()

	for _, req := range reqs {
		if req.Status != domain.StatusCompleted {
			t.Errorf("request %s status = %s, want %s", req.ID, req.Status, domain.StatusCompleted)
		}
	}
}

// TestCommitFallback 验证成功提交失败时降级为 FAILED 提交。
func TestCommitFallback(t *testing.T) {
	store := newMockStore()
	store.completeErr = errors.New("database gone")
	prov := &fakeProvisioner{}
	w := New(store, nil, prov, testWorkerConfig(), metrics.NewCollector("test_w_fallback"), testLogger())

	req := pendingRequest(store)
	if err := w.process(context.Background(), queue.ProvisionJob{RequestID: req.ID}); err != nil {
		t.Fatalf("process() error = %v", err)
	}
	if req.Status != domain.StatusFailed {
		t.Errorf("Status = %s, want fallback to %s", req.Status, domain.StatusFailed)
	}
}

// TestCommitRetriesExhausted 验证失败提交重试耗尽后返回错误让消息重投。
func TestCommitRetriesExhausted(t *testing.T) {
	store := newMockStore()
	store.failErr = errors.New("database gone")
	prov := &fakeProvisioner{err: errors.New("provision failed")}
	cfg := testWorkerConfig()
	w := New(store, nil, prov, cfg, metrics.NewCollector("test_w_retries"), testLogger())

	req := pendingRequest(store)
	err := w.process(context.Background(), queue.ProvisionJob{RequestID: req.ID})
	if err == nil {
		t.Fatal("process() = nil, want error to trigger redelivery")
	}
	wantCalls := cfg.CommitRetries + 1
	if store.failCalls != wantCalls {
		t.Errorf("FailRequest called %d times, want %d", store.failCalls, wantCalls)
	}
}

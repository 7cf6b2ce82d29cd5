// Package queue 提供了基于 NATS JetStream 的任务队列实现。
// 开通任务经 JetStream 持久化流投递给工作进程，
// 投递语义为至少一次：消费端显式 Ack/Nak，处理失败的消息会被重投。
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// 流与主题定义
const (
	// TaskStream 开通任务流
	TaskStream = "DNS_TASKS"
	// SubjectProvision 开通任务主题
	SubjectProvision = "dns.provision.request"

	// IngestStream 外部消息接入流
	IngestStream = "DNS_INGEST"
	// SubjectIngest 外部消息接入主题
	SubjectIngest = "dns.ingest.request"
)

// ProvisionJob 是投递给工作进程的任务载荷。
// 载荷只携带请求标识符，请求本体以数据库为准；
// 这样重投的旧消息不会携带过期的请求快照。
type ProvisionJob struct {
	// RequestID 待开通请求的标识符
	RequestID string `json:"request_id"`
	// EnqueuedAt 入队时间
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// TaskQueue 是基于 NATS JetStream 的任务队列。
type TaskQueue struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log *logrus.Logger

	subs []*nats.Subscription
}

// NewTaskQueue 连接 NATS 并确保任务流存在。
//
// 参数：
//   - url: NATS 服务器地址
//   - log: 日志记录器
func NewTaskQueue(url string, log *logrus.Logger) (*TaskQueue, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	q := &TaskQueue{nc: nc, js: js, log: log}
	if err := q.ensureStreams(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

// ensureStreams 确保任务流和接入流存在（幂等）。
func (q *TaskQueue) ensureStreams() error {
	streams := []*nats.StreamConfig{
		{
			Name:      TaskStream,
			Subjects:  []string{"dns.provision.>"},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
			MaxAge:    24 * time.Hour,
		},
		{
			Name:      IngestStream,
			Subjects:  []string{"dns.ingest.>"},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
			MaxAge:    24 * time.Hour,
		},
	}
	for _, cfg := range streams {
		if _, err := q.js.AddStream(cfg); err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("add stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// PublishJob 将开通任务投递到任务流。
func (q *TaskQueue) PublishJob(requestID string) error {
	job := ProvisionJob{RequestID: requestID, EnqueuedAt: time.Now().UTC()}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if _, err := q.js.Publish(SubjectProvision, data); err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// ConsumeJobs 以队列组方式消费开通任务，workers 指定本进程的并发消费数。
// 每个成员订阅独立投递回调，开通动作互不阻塞；同一条消息只会投给其中一个成员。
// handler 返回 nil 时 Ack，返回错误时 Nak 让消息稍后重投。
func (q *TaskQueue) ConsumeJobs(workers int, handler func(job ProvisionJob) error) error {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		sub, err := q.js.QueueSubscribe(SubjectProvision, "provisioner", func(msg *nats.Msg) {
			var job ProvisionJob
			if err := json.Unmarshal(msg.Data, &job); err != nil {
				q.log.WithError(err).Error("Failed to decode provision job, dropping")
				msg.Ack()
				return
			}
			if err := handler(job); err != nil {
				q.log.WithError(err).WithField("request_id", job.RequestID).Warn("Provision job failed, will redeliver")
				msg.Nak()
				return
			}
			msg.Ack()
		}, nats.Durable("provisioner"), nats.ManualAck(), nats.AckWait(2*time.Minute))
		if err != nil {
			return fmt.Errorf("subscribe provision: %w", err)
		}
		q.subs = append(q.subs, sub)
	}
	return nil
}

// PublishIngest 将一条外部接入消息投递到接入流。测试与 CLI 回放用。
func (q *TaskQueue) PublishIngest(data []byte) error {
	if _, err := q.js.Publish(SubjectIngest, data); err != nil {
		return fmt.Errorf("publish ingest: %w", err)
	}
	return nil
}

// SubscribeIngest 以队列组方式消费外部接入消息，供接入桥使用。
// handler 返回 nil 时 Ack；返回错误时 Nak 重投。
// 格式损坏的消息由 handler 自行丢弃（返回 nil）。
func (q *TaskQueue) SubscribeIngest(handler func(data []byte) error) error {
	sub, err := q.js.QueueSubscribe(SubjectIngest, "dns-bridge", func(msg *nats.Msg) {
		if err := handler(msg.Data); err != nil {
			q.log.WithError(err).Warn("Ingest message failed, will redeliver")
			msg.Nak()
			return
		}
		msg.Ack()
	}, nats.Durable("dns-bridge"), nats.ManualAck(), nats.AckWait(time.Minute))
	if err != nil {
		return fmt.Errorf("subscribe ingest: %w", err)
	}
	q.subs = append(q.subs, sub)
	return nil
}

// Close 注销订阅并断开连接。Drain 保证在途消息处理完毕后才关闭。
func (q *TaskQueue) Close() {
	for _, sub := range q.subs {
		sub.Drain()
	}
	q.nc.Drain()
}

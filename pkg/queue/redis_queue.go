package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"studyhub/internal/util"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// CleanupJob tracks one orphaned blob awaiting deletion.
type CleanupJob struct {
	ID           string    `json:"id"`
	BlobName     string    `json:"blobName"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Handler processes a job. A nil return acknowledges it.
type Handler func(context.Context, CleanupJob) error

// CleanupQueue is a Redis Streams consumer-group queue of blob deletions.
type CleanupQueue struct {
	client       *redis.Client
	stream       string
	group        string
	consumerBase string
	jobTTL       time.Duration
	maxRetries   int
	block        time.Duration
	claimIdle    time.Duration
	retryDelay   time.Duration
	maxLen       int64
	readCount    int64
	claimCount   int64
	once         sync.Once
}

type Config struct {
	Addr       string
	Password   string
	Stream     string
	Group      string
	Consumer   string
	JobTTL     time.Duration
	MaxRetries int
	Block      time.Duration
	ClaimIdle  time.Duration
	RetryDelay time.Duration
	MaxLen     int64
	ReadCount  int64
	ClaimCount int64
}

func NewCleanupQueue(cfg Config) (*CleanupQueue, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	return NewCleanupQueueWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}), cfg)
}

// NewCleanupQueueWithClient shares an existing client, e.g. the one the rate
// limiter uses.
func NewCleanupQueueWithClient(client *redis.Client, cfg Config) (*CleanupQueue, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "studyhub:blob-cleanup"
	}
	group := strings.TrimSpace(cfg.Group)
	if group == "" {
		group = "default"
	}
	consumer := strings.TrimSpace(cfg.Consumer)
	if consumer == "" {
		consumer = util.NewID()
	}
	q := &CleanupQueue{
		client:       client,
		stream:       stream,
		group:        group,
		consumerBase: consumer,
		jobTTL:       orDuration(cfg.JobTTL, 24*time.Hour),
		maxRetries:   cfg.MaxRetries,
		block:        orDuration(cfg.Block, 5*time.Second),
		claimIdle:    orDuration(cfg.ClaimIdle, 30*time.Second),
		retryDelay:   orDuration(cfg.RetryDelay, 2*time.Second),
		maxLen:       cfg.MaxLen,
		readCount:    cfg.ReadCount,
		claimCount:   cfg.ClaimCount,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 5
	}
	if q.maxLen <= 0 {
		q.maxLen = 10000
	}
	if q.readCount <= 0 {
		q.readCount = 10
	}
	if q.claimCount <= 0 {
		q.claimCount = 10
	}
	return q, nil
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

// Enqueue schedules blobName for deletion.
func (q *CleanupQueue) Enqueue(ctx context.Context, blobName string) (CleanupJob, error) {
	blobName = strings.TrimSpace(blobName)
	if blobName == "" {
		return CleanupJob{}, errors.New("blob name required")
	}
	now := time.Now().UTC()
	job := CleanupJob{
		ID:        util.NewID(),
		BlobName:  blobName,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return CleanupJob{}, err
	}
	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":    job.ID,
			"blob_name": job.BlobName,
		},
	}).Err(); err != nil {
		return CleanupJob{}, err
	}
	return job, nil
}

func (q *CleanupQueue) GetJob(ctx context.Context, jobID string) (CleanupJob, bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return CleanupJob{}, false, nil
	}
	data, err := q.client.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return CleanupJob{}, false, err
	}
	if len(data) == 0 {
		return CleanupJob{}, false, nil
	}
	return decodeJob(jobID, data), true, nil
}

// Start launches concurrency consumers that run until ctx is done.
func (q *CleanupQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	q.ensureGroup(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumerBase, i)
		go q.consumeLoop(ctx, consumer, handler)
	}
}

func (q *CleanupQueue) ensureGroup(ctx context.Context) {
	q.once.Do(func() {
		err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			slog.Warn("cleanup queue: create group failed", "stream", q.stream, "err", err)
		}
	})
}

func (q *CleanupQueue) consumeLoop(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if msgs, err := q.claimPending(ctx, consumer); err == nil {
			for _, msg := range msgs {
				q.handleMessage(ctx, msg, handler)
			}
		}

		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{q.stream, ">"},
			Count:    q.readCount,
			Block:    q.block,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				slog.Warn("cleanup queue: read failed", "consumer", consumer, "err", err)
				time.Sleep(q.retryDelay)
			}
			continue
		}
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				q.handleMessage(ctx, msg, handler)
			}
		}
	}
}

func (q *CleanupQueue) claimPending(ctx context.Context, consumer string) ([]redis.XMessage, error) {
	res, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  q.claimIdle,
		Start:    "0-0",
		Count:    q.claimCount,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (q *CleanupQueue) handleMessage(ctx context.Context, msg redis.XMessage, handler Handler) {
	jobID, _ := msg.Values["job_id"].(string)
	blobName, _ := msg.Values["blob_name"].(string)
	if jobID == "" || blobName == "" {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	job, err := q.markProcessing(ctx, jobID, blobName)
	if err != nil {
		q.ackAndDel(ctx, msg.ID)
		return
	}
	err = handler(ctx, job)
	if err == nil {
		_ = q.setStatus(ctx, jobID, StatusDone, "")
		q.ackAndDel(ctx, msg.ID)
		return
	}
	if job.Attempts >= q.maxRetries {
		slog.Error("cleanup queue: giving up", "job_id", jobID, "blob", blobName, "attempts", job.Attempts, "err", err)
		_ = q.setStatus(ctx, jobID, StatusFailed, err.Error())
		q.ackAndDel(ctx, msg.ID)
		return
	}
	_ = q.setStatus(ctx, jobID, StatusQueued, err.Error())
	select {
	case <-ctx.Done():
		return
	case <-time.After(q.retryDelay):
	}
	_ = q.requeueAndAck(ctx, msg.ID, jobID, blobName)
}

func (q *CleanupQueue) ackAndDel(ctx context.Context, msgID string) {
	_, _ = q.client.XAck(ctx, q.stream, q.group, msgID).Result()
	_, _ = q.client.XDel(ctx, q.stream, msgID).Result()
}

// requeueAndAck re-adds the job and acknowledges the original atomically, so a
// failure leaves the original message pending for XAUTOCLAIM.
func (q *CleanupQueue) requeueAndAck(ctx context.Context, msgID, jobID, blobName string) error {
	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":    jobID,
			"blob_name": blobName,
		},
	})
	pipe.XAck(ctx, q.stream, q.group, msgID)
	pipe.XDel(ctx, q.stream, msgID)
	_, err := pipe.Exec(ctx)
	return err
}

func (q *CleanupQueue) markProcessing(ctx context.Context, jobID, blobName string) (CleanupJob, error) {
	job, found, err := q.GetJob(ctx, jobID)
	if err != nil {
		return CleanupJob{}, err
	}
	if !found {
		job = CleanupJob{ID: jobID}
	}
	job.BlobName = blobName
	job.Attempts++
	job.Status = StatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}
	if err := q.writeStatus(ctx, job); err != nil {
		return CleanupJob{}, err
	}
	return job, nil
}

func (q *CleanupQueue) setStatus(ctx context.Context, jobID, status, errMsg string) error {
	job, _, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	job.ID = jobID
	job.Status = status
	job.ErrorMessage = errMsg
	job.UpdatedAt = time.Now().UTC()
	return q.writeStatus(ctx, job)
}

func (q *CleanupQueue) writeStatus(ctx context.Context, job CleanupJob) error {
	key := q.jobKey(job.ID)
	payload := map[string]any{
		"id":        job.ID,
		"blobName":  job.BlobName,
		"status":    job.Status,
		"error":     job.ErrorMessage,
		"attempts":  strconv.Itoa(job.Attempts),
		"createdAt": job.CreatedAt.Format(time.RFC3339Nano),
		"updatedAt": job.UpdatedAt.Format(time.RFC3339Nano),
	}
	if err := q.client.HSet(ctx, key, payload).Err(); err != nil {
		return err
	}
	_ = q.client.Expire(ctx, key, q.jobTTL).Err()
	return nil
}

func (q *CleanupQueue) jobKey(jobID string) string {
	return fmt.Sprintf("job:%s:%s", q.stream, jobID)
}

func decodeJob(jobID string, data map[string]string) CleanupJob {
	job := CleanupJob{
		ID:           jobID,
		BlobName:     data["blobName"],
		Status:       data["status"],
		ErrorMessage: data["error"],
	}
	if n, err := strconv.Atoi(data["attempts"]); err == nil {
		job.Attempts = n
	}
	if t, err := time.Parse(time.RFC3339Nano, data["createdAt"]); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, data["updatedAt"]); err == nil {
		job.UpdatedAt = t
	}
	return job
}

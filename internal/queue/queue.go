/*
Copyright 2025 The Citewatch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package queue is the Redis-backed work broker. A ready list serves
// consumers through BRPOP; a delayed sorted set holds backoff re-deliveries
// scored by ready time. Delivery is at-least-once — the tracking_jobs row is
// authoritative, so a lost or duplicated message is harmless.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiviz/citewatch/pkg/shared/logging"
)

// Message is the transient job pointer carried by the broker.
type Message struct {
	JobID     string `json:"job_id"`
	ProjectID string `json:"project_id"`
	KeywordID string `json:"keyword_id"`
	Platform  string `json:"platform"`
}

// Queue is one named broker queue.
type Queue struct {
	client *redis.Client
	ready  string
	delay  string
	logger *zap.Logger
	now    func() time.Time
}

// Connect opens and pings the Redis client for url.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queue url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping queue broker: %w", err)
	}
	return client, nil
}

// New builds the named queue.
func New(client *redis.Client, name string, logger *zap.Logger) *Queue {
	return &Queue{
		client: client,
		ready:  "citewatch:queue:" + name,
		delay:  "citewatch:queue:" + name + ":delayed",
		logger: logger.Named("queue"),
		now:    time.Now,
	}
}

// Enqueue pushes a message onto the ready list.
func (q *Queue) Enqueue(ctx context.Context, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}
	if err := q.client.LPush(ctx, q.ready, payload).Err(); err != nil {
		return fmt.Errorf("failed to enqueue message: %w", err)
	}
	return nil
}

// EnqueueDelayed parks a message until readyAt, then Dequeue promotes it.
func (q *Queue) EnqueueDelayed(ctx context.Context, msg *Message, readyAt time.Time) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode queue message: %w", err)
	}
	err = q.client.ZAdd(ctx, q.delay, redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: payload,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue delayed message: %w", err)
	}
	return nil
}

// Dequeue promotes due delayed messages, then blocks up to timeout for the
// next ready message. A nil message with nil error means the timeout passed
// quietly.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Message, error) {
	if err := q.promoteDue(ctx); err != nil {
		q.logger.Warn("failed to promote delayed messages",
			logging.QueueFields("promote", q.ready).Error(err).ToZap()...)
	}

	res, err := q.client.BRPop(ctx, timeout, q.ready).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue message: %w", err)
	}
	// BRPop returns [key, value].
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to decode queue message: %w", err)
	}
	return &msg, nil
}

// promoteDue moves delayed messages whose ready time has passed onto the
// ready list. Each member's removal and push run in one transaction, but
// reading the due members is a separate step, so two consumers promoting at
// once can push the same member twice; the job-claim transition absorbs
// the duplicate delivery.
func (q *Queue) promoteDue(ctx context.Context) error {
	now := float64(q.now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, q.delay, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 100,
	}).Result()
	if err != nil || len(due) == 0 {
		return err
	}

	pipe := q.client.TxPipeline()
	for _, member := range due {
		pipe.ZRem(ctx, q.delay, member)
		pipe.LPush(ctx, q.ready, member)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Depth reports ready and delayed backlog sizes.
func (q *Queue) Depth(ctx context.Context) (ready, delayed int64, err error) {
	ready, err = q.client.LLen(ctx, q.ready).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	delayed, err = q.client.ZCard(ctx, q.delay).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read delayed depth: %w", err)
	}
	return ready, delayed, nil
}

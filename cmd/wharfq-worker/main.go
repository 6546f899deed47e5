// Command wharfq-worker runs a generic wharfq worker against a single
// queue, logging each job's payload and its outcome. It is meant as an
// operational smoke-test and a starting point for a real worker binary,
// not as a production handler.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/wharfq/wharfq"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis server address")
	queueName := flag.String("queue", "default", "queue name to process")
	keyPrefix := flag.String("prefix", "wharf", "wharfq key prefix")
	concurrency := flag.Int("concurrency", 10, "maximum jobs processed at once")
	logLevel := wharfq.InfoLevel
	flag.Var(&logLevel, "log-level", "minimum log level (debug, info, warn, error, fatal)")
	flag.Parse()

	q := wharfq.NewQueue(
		wharfq.RedisClientOpt{Addr: *redisAddr},
		*queueName,
		wharfq.Config{
			KeyPrefix: *keyPrefix,
			LogLevel:  logLevel,
		},
		wharfq.QueueOptions{
			Concurrency:     *concurrency,
			ShutdownTimeout: 10 * time.Second,
		},
	)

	q.On("completed", func(job *wharfq.Job) {
		log.Printf("completed job %s", job.ID)
	})
	q.On("failed", func(job *wharfq.Job) {
		log.Printf("failed job %s permanently", job.ID)
	})

	handler := wharfq.HandlerFunc(func(ctx context.Context, job *wharfq.Job) (interface{}, error) {
		log.Printf("processing job %s: %s (attempt %d/%d)", job.ID, string(job.Data), job.AttemptsMade, job.MaxAttempts())
		return nil, nil
	})

	log.Printf("wharfq-worker listening on queue %q at %s", *queueName, *redisAddr)
	if err := q.Run(handler); err != nil {
		log.Fatalf("queue exited with error: %v", err)
	}
}

// Command wharfq-client adds a single job to a wharfq queue from the
// command line, reading its payload as raw JSON from the -payload flag.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"github.com/wharfq/wharfq"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis server address")
	queueName := flag.String("queue", "default", "queue name to add the job to")
	keyPrefix := flag.String("prefix", "wharf", "wharfq key prefix")
	payload := flag.String("payload", "{}", "raw JSON payload for the job")
	delay := flag.Duration("delay", 0, "delay before the job becomes processable")
	maxRetry := flag.Int("max-retry", 1, "maximum number of attempts")
	priority := flag.Int("priority", 0, "lower values run before higher ones")
	jobID := flag.String("id", "", "explicit job id; generated if empty")
	flag.Parse()

	client := wharfq.NewClient(
		wharfq.RedisClientOpt{Addr: *redisAddr},
		*queueName,
		wharfq.Config{KeyPrefix: *keyPrefix},
	)
	defer client.Close()

	var opts []wharfq.Option
	if *delay > 0 {
		opts = append(opts, wharfq.Delay(*delay))
	}
	if *maxRetry > 0 {
		opts = append(opts, wharfq.MaxRetry(*maxRetry))
	}
	if *priority != 0 {
		opts = append(opts, wharfq.Priority(*priority))
	}
	if *jobID != "" {
		opts = append(opts, wharfq.JobID(*jobID))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := client.Add(ctx, json.RawMessage(*payload), opts...)
	if err != nil {
		log.Fatalf("could not add job: %v", err)
	}
	log.Printf("added job %s to queue %q", id, *queueName)
}

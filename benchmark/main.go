package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wharfq/wharfq"
)

const redisAddr = "localhost:6379"

type BenchmarkResult struct {
	Name     string
	Jobs     int
	Workers  int
	Duration time.Duration
	Rate     float64
	RateK    float64
	Success  int64
	Failed   int64
}

var allResults []BenchmarkResult

func clearRedis() {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	defer client.Close()
	client.FlushAll(context.Background())
}

// BenchmarkAdd tests raw Client.Add throughput.
func BenchmarkAdd(numJobs int, concurrency int) BenchmarkResult {
	log.Printf("\n=== ADD BENCHMARK ===")
	log.Printf("Jobs: %d, Concurrency: %d goroutines", numJobs, concurrency)

	client := wharfq.NewClient(wharfq.RedisClientOpt{Addr: redisAddr}, "benchmark", wharfq.Config{})
	defer client.Close()

	payload := map[string]interface{}{
		"job_id":    0,
		"data":      "benchmark payload data for testing throughput",
		"timestamp": time.Now().Unix(),
	}

	var wg sync.WaitGroup
	var successCount int64
	var failCount int64

	jobsPerWorker := numJobs / concurrency
	start := time.Now()
	ctx := context.Background()

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < jobsPerWorker; i++ {
				_, err := client.Add(ctx, payload)
				if err != nil {
					atomic.AddInt64(&failCount, 1)
				} else {
					atomic.AddInt64(&successCount, 1)
				}
			}
		}()
	}

	wg.Wait()
	duration := time.Since(start)

	rate := float64(successCount) / duration.Seconds()
	result := BenchmarkResult{
		Name:     fmt.Sprintf("Add (concurrency=%d)", concurrency),
		Jobs:     numJobs,
		Workers:  concurrency,
		Duration: duration,
		Rate:     rate,
		RateK:    rate / 1000,
		Success:  successCount,
		Failed:   failCount,
	}

	log.Printf("Results:")
	log.Printf("  Duration: %v", duration)
	log.Printf("  Success: %d, Failed: %d", successCount, failCount)
	log.Printf("  Add Rate: %.2f jobs/sec", rate)
	log.Printf("  Rate (K): %.2f K jobs/sec", rate/1000)

	return result
}

// BenchmarkProcessing tests job processing throughput.
func BenchmarkProcessing(numJobs int, workers int) BenchmarkResult {
	log.Printf("\n=== PROCESSING BENCHMARK ===")
	log.Printf("Jobs: %d, Worker Pool: %d workers", numJobs, workers)

	log.Println("Pre-adding jobs...")
	client := wharfq.NewClient(wharfq.RedisClientOpt{Addr: redisAddr}, "benchmark-process", wharfq.Config{})

	payload := map[string]interface{}{"job_id": 0, "data": "benchmark"}

	var wg sync.WaitGroup
	addWorkers := 100
	jobsPerWorker := numJobs / addWorkers
	ctx := context.Background()

	for w := 0; w < addWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < jobsPerWorker; i++ {
				client.Add(ctx, payload)
			}
		}()
	}
	wg.Wait()
	client.Close()
	log.Printf("Pre-added %d jobs", numJobs)

	var processedCount int64
	var startTime time.Time
	var started bool
	var mu sync.Mutex

	q := wharfq.NewQueue(
		wharfq.RedisClientOpt{Addr: redisAddr},
		"benchmark-process",
		wharfq.Config{},
		wharfq.QueueOptions{Concurrency: workers},
	)

	handler := wharfq.HandlerFunc(func(ctx context.Context, job *wharfq.Job) (interface{}, error) {
		mu.Lock()
		if !started {
			startTime = time.Now()
			started = true
		}
		mu.Unlock()
		atomic.AddInt64(&processedCount, 1)
		return nil, nil
	})

	go func() {
		if err := q.Start(handler); err != nil {
			log.Printf("Queue error: %v", err)
		}
	}()

	timeout := time.After(120 * time.Second)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var result BenchmarkResult

	for {
		select {
		case <-ticker.C:
			count := atomic.LoadInt64(&processedCount)
			if count >= int64(numJobs) {
				duration := time.Since(startTime)
				rate := float64(count) / duration.Seconds()
				result = BenchmarkResult{
					Name:     fmt.Sprintf("Processing (workers=%d)", workers),
					Jobs:     numJobs,
					Workers:  workers,
					Duration: duration,
					Rate:     rate,
					RateK:    rate / 1000,
					Success:  count,
					Failed:   0,
				}
				log.Printf("Results:")
				log.Printf("  Duration: %v", duration)
				log.Printf("  Processed: %d jobs", count)
				log.Printf("  Processing Rate: %.2f jobs/sec", rate)
				log.Printf("  Rate (K): %.2f K jobs/sec", rate/1000)
				q.Shutdown()
				return result
			}
		case <-timeout:
			count := atomic.LoadInt64(&processedCount)
			duration := time.Since(startTime)
			rate := float64(count) / duration.Seconds()
			result = BenchmarkResult{
				Name:     fmt.Sprintf("Processing (workers=%d)", workers),
				Jobs:     numJobs,
				Workers:  workers,
				Duration: duration,
				Rate:     rate,
				RateK:    rate / 1000,
				Success:  count,
				Failed:   int64(numJobs) - count,
			}
			log.Printf("TIMEOUT - Results so far:")
			log.Printf("  Duration: %v", duration)
			log.Printf("  Processed: %d jobs", count)
			log.Printf("  Processing Rate: %.2f jobs/sec", rate)
			log.Printf("  Rate (K): %.2f K jobs/sec", rate/1000)
			q.Shutdown()
			return result
		}
	}
}

// BenchmarkMixedLoad tests combined add + processing throughput.
func BenchmarkMixedLoad(duration time.Duration, addWorkers, processWorkers int) (BenchmarkResult, BenchmarkResult) {
	log.Printf("\n=== MIXED LOAD BENCHMARK ===")
	log.Printf("Duration: %v, Add Workers: %d, Process Workers: %d", duration, addWorkers, processWorkers)

	var processedCount int64
	q := wharfq.NewQueue(
		wharfq.RedisClientOpt{Addr: redisAddr},
		"benchmark-mixed",
		wharfq.Config{},
		wharfq.QueueOptions{Concurrency: processWorkers},
	)

	handler := wharfq.HandlerFunc(func(ctx context.Context, job *wharfq.Job) (interface{}, error) {
		atomic.AddInt64(&processedCount, 1)
		return nil, nil
	})

	go func() {
		if err := q.Start(handler); err != nil {
			log.Printf("Queue error: %v", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)

	var addedCount int64
	stopAdding := make(chan struct{})

	client := wharfq.NewClient(wharfq.RedisClientOpt{Addr: redisAddr}, "benchmark-mixed", wharfq.Config{})

	payload := map[string]interface{}{"data": "mixed load test"}
	ctx := context.Background()

	for w := 0; w < addWorkers; w++ {
		go func() {
			for {
				select {
				case <-stopAdding:
					return
				default:
					_, err := client.Add(ctx, payload)
					if err == nil {
						atomic.AddInt64(&addedCount, 1)
					}
				}
			}
		}()
	}

	start := time.Now()
	time.Sleep(duration)
	close(stopAdding)
	elapsed := time.Since(start)

	time.Sleep(2 * time.Second)

	added := atomic.LoadInt64(&addedCount)
	processed := atomic.LoadInt64(&processedCount)

	addRate := float64(added) / elapsed.Seconds()
	processRate := float64(processed) / elapsed.Seconds()

	log.Printf("Results:")
	log.Printf("  Duration: %v", elapsed)
	log.Printf("  Added: %d jobs", added)
	log.Printf("  Processed: %d jobs", processed)
	log.Printf("  Add Rate: %.2f jobs/sec (%.2f K/sec)", addRate, addRate/1000)
	log.Printf("  Process Rate: %.2f jobs/sec (%.2f K/sec)", processRate, processRate/1000)

	client.Close()
	q.Shutdown()

	addResult := BenchmarkResult{
		Name:     fmt.Sprintf("Mixed Add (workers=%d)", addWorkers),
		Jobs:     int(added),
		Workers:  addWorkers,
		Duration: elapsed,
		Rate:     addRate,
		RateK:    addRate / 1000,
		Success:  added,
		Failed:   0,
	}

	processResult := BenchmarkResult{
		Name:     fmt.Sprintf("Mixed Process (workers=%d)", processWorkers),
		Jobs:     int(processed),
		Workers:  processWorkers,
		Duration: elapsed,
		Rate:     processRate,
		RateK:    processRate / 1000,
		Success:  processed,
		Failed:   0,
	}

	return addResult, processResult
}

func printSummaryTable() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                           BENCHMARK RESULTS SUMMARY                                   ║")
	fmt.Println("╠═══════════════════════════════════════════════╦═══════════╦═══════════╦══════════════╣")
	fmt.Println("║ Test                                          ║  Jobs     ║  Workers  ║  Rate (K/s)  ║")
	fmt.Println("╠═══════════════════════════════════════════════╬═══════════╬═══════════╬══════════════╣")

	for _, r := range allResults {
		fmt.Printf("║ %-45s ║ %9d ║ %9d ║ %10.2f K ║\n", r.Name, r.Jobs, r.Workers, r.RateK)
	}

	fmt.Println("╚═══════════════════════════════════════════════╩═══════════╩═══════════╩══════════════╝")
}

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	fmt.Println("╔══════════════════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                           WHARFQ BENCHMARK SUITE                                     ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════════════════╝")
	log.Printf("CPU Cores: %d | GOMAXPROCS: %d", runtime.NumCPU(), runtime.GOMAXPROCS(0))
	log.Printf("Started at: %s", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("                                ADD BENCHMARKS")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	for _, concurrency := range []int{10, 50, 100, 200} {
		clearRedis()
		result := BenchmarkAdd(100000, concurrency)
		allResults = append(allResults, result)
	}

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("                            PROCESSING BENCHMARKS")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	for _, workers := range []int{10, 25, 50, 100} {
		clearRedis()
		result := BenchmarkProcessing(50000, workers)
		allResults = append(allResults, result)
	}

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("                             MIXED LOAD BENCHMARKS")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	clearRedis()
	addResult, procResult := BenchmarkMixedLoad(10*time.Second, 50, 50)
	allResults = append(allResults, addResult, procResult)

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("                          FINAL VERIFICATION TEST")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	clearRedis()
	finalAdd := BenchmarkAdd(200000, 100)
	allResults = append(allResults, finalAdd)

	clearRedis()
	finalProcess := BenchmarkProcessing(100000, 50)
	allResults = append(allResults, finalProcess)

	printSummaryTable()

	log.Printf("\nCompleted at: %s", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println("\nBenchmark complete!")
}

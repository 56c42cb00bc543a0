package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	rounds      int
	racers      int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64 // Attach landed before approval
	success201    uint64 // Created
	fail409       uint64 // Frozen by approval
	failOther     uint64
	lostUpdates   uint64 // Accepted attachments missing from the approved record
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent accident pipelines")
	flag.IntVar(&rounds, "rounds", 50, "Accidents per worker")
	flag.IntVar(&racers, "racers", 8, "Vehicle attachments racing each approval")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: attach-vs-approve | Workers: %d | Rounds: %d | Racers: %d", concurrency, rounds, racers)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, i)
	}

	wg.Wait()
	printResults(time.Since(start))
}

type record struct {
	Identifier string `json:"identifier"`
	Vehicles   []struct {
		Registration string `json:"registration"`
	} `json:"vehicles"`
}

func worker(wg *sync.WaitGroup, n int) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for round := 0; round < rounds; round++ {
		id, ok := prepare(client, n, round)
		if !ok {
			continue
		}

		var (
			race     sync.WaitGroup
			accepted sync.Map
		)
		race.Add(racers + 1)
		go func() {
			defer race.Done()
			post(client, "/api/v1/accidents/"+id+"/report:approve", map[string]any{"reviewer_id": "bench-reviewer"})
		}()
		for i := 0; i < racers; i++ {
			go func(i int) {
				defer race.Done()
				reg := fmt.Sprintf("R%d-%d-%d", n, round, i)
				if post(client, "/api/v1/accidents/"+id+"/vehicles", map[string]any{"registration": reg, "fault_percent": 0}) == http.StatusOK {
					accepted.Store(reg, true)
				}
			}(i)
		}
		race.Wait()

		final, ok := get(client, "/api/v1/accidents/"+id)
		if !ok {
			continue
		}
		stored := map[string]bool{}
		for _, v := range final.Vehicles {
			stored[v.Registration] = true
		}
		accepted.Range(func(k, _ any) bool {
			if !stored[k.(string)] {
				atomic.AddUint64(&lostUpdates, 1)
			}
			return true
		})
	}
}

// prepare opens an accident with two vehicles at 60/40 fault and submits it.
func prepare(client *http.Client, n, round int) (string, bool) {
	body, _ := json.Marshal(map[string]any{"narrative": "benchmark collision", "author_id": "bench-officer"})
	req, _ := http.NewRequest("POST", targetURL+"/api/v1/accidents", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", fmt.Sprintf("bench-%d-%d-%d", n, round, time.Now().UnixNano()))
	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return "", false
	}
	defer resp.Body.Close()
	count(resp.StatusCode)

	var created record
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil || created.Identifier == "" {
		return "", false
	}
	id := created.Identifier

	for i, fault := range []int{60, 40} {
		reg := fmt.Sprintf("P%d-%d-%d", n, round, i)
		if post(client, "/api/v1/accidents/"+id+"/vehicles", map[string]any{"registration": reg, "fault_percent": fault}) != http.StatusOK {
			return "", false
		}
	}
	if post(client, "/api/v1/accidents/"+id+"/report:submit", nil) != http.StatusOK {
		return "", false
	}
	return id, true
}

func post(client *http.Client, path string, payload any) int {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	req, _ := http.NewRequest("POST", targetURL+path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return 0
	}
	resp.Body.Close()
	count(resp.StatusCode)
	return resp.StatusCode
}

func get(client *http.Client, path string) (record, bool) {
	var rec record
	resp, err := client.Get(targetURL + path)
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return rec, false
	}
	defer resp.Body.Close()
	count(resp.StatusCode)
	return rec, json.NewDecoder(resp.Body).Decode(&rec) == nil
}

func count(code int) {
	atomic.AddUint64(&totalRequests, 1)
	switch code {
	case 201:
		atomic.AddUint64(&success201, 1)
	case 200:
		atomic.AddUint64(&success200, 1)
	case 409:
		atomic.AddUint64(&fail409, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	s200 := atomic.LoadUint64(&success200)
	f409 := atomic.LoadUint64(&fail409)
	fErr := atomic.LoadUint64(&failOther)
	lost := atomic.LoadUint64(&lostUpdates)

	tps := float64(total) / d.Seconds()
	frozenRate := 0.0
	if total > 0 {
		frozenRate = float64(f409) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         "attach-vs-approve",
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"success_created":  s201,
		"success_ok":       s200,
		"frozen_conflicts": f409,
		"frozen_rate_pct":  frozenRate,
		"errors":           fErr,
		"lost_updates":     lost,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	file, err := os.Create("results_attach_vs_approve.json")
	if err != nil {
		log.Printf("could not write results file: %v", err)
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}

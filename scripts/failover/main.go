// Failover is a drill that drives a running gateway while its replicas are
// toggled through their /admin endpoints, and checks that requests keep
// succeeding until the last replica goes down.
//
// Usage:
//
//	go run ./scripts/failover --gateway http://localhost:8080 \
//	    --replicas http://localhost:5000,http://localhost:5001,http://localhost:5002
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	"github.com/angeloszaimis/replica-failover/internal/metrics"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type phaseResult struct {
	mu        sync.Mutex
	served    map[string]int
	statuses  map[int]int
	errors    int
	fallbacks int
}

func main() {
	var (
		gatewayURL  = pflag.String("gateway", "http://localhost:8080", "gateway URL")
		replicaURLs = pflag.StringSlice("replicas", []string{"http://localhost:5000", "http://localhost:5001", "http://localhost:5002"}, "replica URLs in gateway order")
		requests    = pflag.Int("requests", 20, "requests per phase")
		concurrency = pflag.Int("concurrency", 4, "concurrent callers")
	)
	pflag.Parse()

	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	fmt.Println(colorCyan + "━━━ REPLICA FAILOVER DRILL ━━━" + colorReset)
	fmt.Println()

	setAll(client, *replicaURLs, false)

	phase("PHASE 1: All replicas up")
	res := drive(client, *gatewayURL, *requests, *concurrency)
	res.print()
	if res.statuses[http.StatusOK] != *requests {
		fmt.Println(colorRed + "  ✗ Expected every request to succeed. Is the gateway running?" + colorReset)
		os.Exit(1)
	}
	fmt.Println(colorGreen + "  ✓ Normal operation verified" + colorReset)

	for i, down := range (*replicaURLs)[:len(*replicaURLs)-1] {
		phase(fmt.Sprintf("PHASE %d: %s down", i+2, down))
		setDown(client, down, true)

		res := drive(client, *gatewayURL, *requests, *concurrency)
		res.print()
		if res.statuses[http.StatusOK] == *requests {
			fmt.Println(colorGreen + "  ✓ Requests failed over" + colorReset)
		} else {
			fmt.Println(colorYellow + "  ⚠ Some requests failed (check gateway logs)" + colorReset)
		}
	}

	phase("PHASE: every replica down")
	setAll(client, *replicaURLs, true)
	res = drive(client, *gatewayURL, *requests, *concurrency)
	res.print()
	if res.fallbacks == *requests {
		fmt.Println(colorGreen + "  ✓ Callers were sent to the fallback page" + colorReset)
	} else {
		fmt.Println(colorYellow + "  ⚠ Expected fallback answers for every request" + colorReset)
	}

	phase("PHASE: recovery")
	setAll(client, *replicaURLs, false)
	res = drive(client, *gatewayURL, *requests, *concurrency)
	res.print()

	phase("Gateway metrics")
	printMetrics(client, *gatewayURL+"/metrics")
}

func phase(title string) {
	fmt.Println()
	fmt.Println(colorBlue + "━━━ " + title + " ━━━" + colorReset)
}

// drive sends n page loads through the gateway from concurrency callers.
func drive(client *http.Client, gatewayURL string, n, concurrency int) *phaseResult {
	res := &phaseResult{served: map[string]int{}, statuses: map[int]int{}}
	jobs := make(chan int)

	var wg conc.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Go(func() {
			for range jobs {
				res.record(send(client, gatewayURL+"/api/echo"))
			}
		})
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return res
}

func send(client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

func (r *phaseResult) record(resp *http.Response, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.errors++
		return
	}
	r.statuses[resp.StatusCode]++
	if replica := resp.Header.Get("X-Replica"); replica != "" {
		r.served[replica]++
	}
	if resp.StatusCode == http.StatusFound || resp.Header.Get("X-Fallback-Location") != "" {
		r.fallbacks++
	}
}

func (r *phaseResult) print() {
	fmt.Println("  Served by:")
	for replica, count := range r.served {
		fmt.Printf("    %s → %d requests\n", replica, count)
	}
	fmt.Printf("  Statuses: %v  transport errors: %d  fallbacks: %d\n", r.statuses, r.errors, r.fallbacks)
}

func setAll(client *http.Client, replicas []string, down bool) {
	for _, r := range replicas {
		setDown(client, r, down)
	}
}

func setDown(client *http.Client, replicaURL string, down bool) {
	path := "/admin/up"
	if down {
		path = "/admin/down"
	}

	resp, err := client.Post(replicaURL+path, "application/json", nil)
	if err != nil {
		fmt.Printf(colorYellow+"  Warning: could not reach %s: %v\n"+colorReset, replicaURL, err)
		return
	}
	resp.Body.Close()
}

func printMetrics(client *http.Client, url string) {
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf(colorYellow+"  Could not fetch metrics: %v\n"+colorReset, err)
		return
	}
	defer resp.Body.Close()

	var snap metrics.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		fmt.Printf(colorYellow+"  Could not decode metrics: %v\n"+colorReset, err)
		return
	}

	fmt.Printf("  Requests: %d  exhausted: %d  strategy: %s\n", snap.TotalRequests, snap.Exhausted, snap.Strategy)
	for label, rm := range snap.Replicas {
		status := colorGreen + "HEALTHY" + colorReset
		if !rm.Healthy {
			status = colorRed + "UNHEALTHY" + colorReset
		}
		fmt.Printf("    %s → %s (attempts: %d, evictions: %d, p95: %s)\n",
			label, status, rm.Attempts, rm.Evictions, rm.P95Response)
	}
}

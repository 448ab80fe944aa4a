// perf-client drives concurrent redemptions against a running referral
// service and then verifies the single-claim property: every successful
// response carries a distinct code, and the server's redeemed count matches.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// PerfResult gathers aggregated metrics for the test run.
// Atomic counters are used to avoid lock contention on hot paths.
// LatencySum & P95Latency are in nanoseconds.
//
// P95Latency is maintained via a lightweight reservoir sampler.
type PerfResult struct {
	TotalRequests int64
	SuccessCount  int64
	ExhaustedCnt  int64
	ErrorCount    int64
	LatencySum    int64
	P95Latency    int64
}

const defaultTimeout = 30 * time.Second

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "service base URL")
	adminUser := flag.String("admin-user", "admin", "admin username for seeding and verification")
	adminPass := flag.String("admin-pass", "", "admin password")
	workers := flag.Int("workers", 50, "concurrent workers")
	rps := flag.Int("rps", 700, "target requests per second")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	pool := flag.Int("pool", 50000, "eligible emails and codes to seed")
	flag.Parse()

	if *adminPass == "" {
		fmt.Fprintln(os.Stderr, "usage: perf-client -admin-pass <password> [flags]")
		os.Exit(2)
	}

	// HTTP client with a cookie jar so the admin session survives seeding
	// and the post-run verification.
	jar, err := cookiejar.New(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cookie jar: %v\n", err)
		os.Exit(1)
	}
	transport := &http.Transport{
		MaxIdleConns:        *workers * 4,
		MaxIdleConnsPerHost: *workers * 4,
		IdleConnTimeout:     90 * time.Second,
	}
	httpClient := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
		Jar:       jar,
	}

	if err := adminLogin(httpClient, *baseURL, *adminUser, *adminPass); err != nil {
		fmt.Fprintf(os.Stderr, "admin login failed: %v\n", err)
		os.Exit(1)
	}
	if err := seedPool(httpClient, *baseURL, *pool); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed pool: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d eligible emails and %d codes\n", *pool, *pool)

	fmt.Println("==========================================")
	fmt.Println("Referral redemption load test")
	fmt.Println("==========================================")
	fmt.Printf("Target RPS : %d\n", *rps)
	fmt.Printf("Workers    : %d\n", *workers)
	fmt.Printf("Duration   : %v\n", *duration)
	fmt.Println("==========================================")

	burst := *rps / *workers
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(*rps), burst)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var result PerfResult
	var wg sync.WaitGroup
	var emailSeq int64
	claimedCodes := sync.Map{}
	var duplicateCodes int64

	// latencyChan collects latencies for P95 estimation.
	latencyChan := make(chan time.Duration, 4096)
	var trackWg sync.WaitGroup
	trackWg.Add(1)
	go func() {
		defer trackWg.Done()
		trackP95(latencyChan, &result)
	}()

	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil { // context cancelled -> exit
					return
				}
				seq := atomic.AddInt64(&emailSeq, 1)
				email := fmt.Sprintf("loadtest-%07d@example.com", seq)
				code, ok := doRequest(httpClient, *baseURL, email, &result, latencyChan)
				if ok {
					if _, loaded := claimedCodes.LoadOrStore(code, email); loaded {
						atomic.AddInt64(&duplicateCodes, 1)
					}
				}
			}
		}()
	}

	start := time.Now()
	<-ctx.Done() // wait for duration

	wg.Wait()
	close(latencyChan)
	trackWg.Wait()

	totalDur := time.Since(start)

	fmt.Println("==========================================")
	fmt.Println("Results")
	fmt.Println("==========================================")
	fmt.Printf("Elapsed            : %.2fs\n", totalDur.Seconds())
	fmt.Printf("Total requests     : %d\n", result.TotalRequests)
	fmt.Printf("Successful claims  : %d\n", result.SuccessCount)
	fmt.Printf("Exhausted          : %d\n", result.ExhaustedCnt)
	fmt.Printf("Errors             : %d\n", result.ErrorCount)

	actualRPS := float64(result.SuccessCount) / totalDur.Seconds()
	var avgLatency time.Duration
	if result.SuccessCount > 0 {
		avgLatency = time.Duration(result.LatencySum / result.SuccessCount)
	}

	fmt.Printf("Actual RPS         : %.2f\n", actualRPS)
	fmt.Printf("Average latency    : %v\n", avgLatency)
	fmt.Printf("P95 latency        : %v\n", time.Duration(atomic.LoadInt64(&result.P95Latency)))
	fmt.Println("==========================================")

	fmt.Println("Consistency check")
	failed := false
	if duplicateCodes > 0 {
		failed = true
		fmt.Printf("FAIL: %d codes were returned to more than one caller\n", duplicateCodes)
	}
	if err := verifyRedeemedCount(httpClient, *baseURL, result.SuccessCount); err != nil {
		failed = true
		fmt.Printf("FAIL: %v\n", err)
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("OK: every successful claim received a distinct code")
}

// adminLogin establishes the admin session cookie.
func adminLogin(client *http.Client, baseURL, username, password string) error {
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := client.Post(baseURL+"/api/admin/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned %d", resp.StatusCode)
	}
	return nil
}

// seedPool uploads n eligible emails and n codes through the admin CSV
// endpoints, replacing whatever the service held before.
func seedPool(client *http.Client, baseURL string, n int) error {
	var emails bytes.Buffer
	emails.WriteString("email,name\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&emails, "loadtest-%07d@example.com,Load Tester\n", i)
	}
	if err := uploadCSV(client, baseURL+"/api/admin/emails/csv", "emails.csv", emails.Bytes()); err != nil {
		return fmt.Errorf("emails upload: %w", err)
	}

	var codes bytes.Buffer
	codes.WriteString("code\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&codes, "LOADTEST%07d\n", i)
	}
	if err := uploadCSV(client, baseURL+"/api/admin/codes/csv", "codes.csv", codes.Bytes()); err != nil {
		return fmt.Errorf("codes upload: %w", err)
	}
	return nil
}

func uploadCSV(client *http.Client, url, filename string, data []byte) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := writer.WriteField("replace", "true"); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	resp, err := client.Post(url, writer.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload returned %d: %s", resp.StatusCode, payload)
	}
	return nil
}

// doRequest performs a single redemption and collects metrics. It returns
// the claimed code when the call succeeded.
func doRequest(client *http.Client, baseURL, email string, result *PerfResult, latencyChan chan<- time.Duration) (string, bool) {
	payload, _ := json.Marshal(map[string]string{"email": email})

	start := time.Now()
	atomic.AddInt64(&result.TotalRequests, 1)

	resp, err := client.Post(baseURL+"/api/redeem", "application/json", bytes.NewReader(payload))
	latency := time.Since(start)

	if err != nil {
		atomic.AddInt64(&result.ErrorCount, 1)
		return "", false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var redemption struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&redemption); err != nil || redemption.Code == "" {
			atomic.AddInt64(&result.ErrorCount, 1)
			return "", false
		}
		atomic.AddInt64(&result.SuccessCount, 1)
		atomic.AddInt64(&result.LatencySum, latency.Nanoseconds())
		select {
		case latencyChan <- latency:
		default:
		}
		return redemption.Code, true
	case http.StatusGone:
		atomic.AddInt64(&result.ExhaustedCnt, 1)
		return "", false
	default:
		atomic.AddInt64(&result.ErrorCount, 1)
		return "", false
	}
}

// verifyRedeemedCount checks the server's own accounting against what the
// clients observed.
func verifyRedeemedCount(client *http.Client, baseURL string, want int64) error {
	resp, err := client.Get(baseURL + "/api/admin/analytics")
	if err != nil {
		return fmt.Errorf("analytics fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("analytics returned %d", resp.StatusCode)
	}

	var snapshot struct {
		Summary struct {
			Redeemed int64 `json:"redeemed"`
		} `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return fmt.Errorf("analytics decode: %w", err)
	}
	if snapshot.Summary.Redeemed != want {
		return fmt.Errorf("server reports %d redeemed codes, clients observed %d successes", snapshot.Summary.Redeemed, want)
	}
	return nil
}

// trackP95 maintains a best-effort rolling P95 latency estimation.
func trackP95(latencies <-chan time.Duration, result *PerfResult) {
	const size = 1000
	buf := make([]int64, 0, size)

	for lat := range latencies {
		if len(buf) < size {
			buf = append(buf, lat.Nanoseconds())
		} else {
			// Replace random element (simple reservoir sampling)
			if idx := time.Now().UnixNano() % int64(size); idx < int64(size/10) {
				buf[idx] = lat.Nanoseconds()
			}
		}

		// Update P95 periodically
		if len(buf) >= 100 && len(buf)%100 == 0 {
			copyBuf := make([]int64, len(buf))
			copy(copyBuf, buf)
			sort.Slice(copyBuf, func(i, j int) bool { return copyBuf[i] < copyBuf[j] })
			p95Index := int(float64(len(copyBuf)) * 0.95)
			if p95Index >= len(copyBuf) {
				p95Index = len(copyBuf) - 1
			}
			atomic.StoreInt64(&result.P95Latency, copyBuf[p95Index])
		}
	}
}

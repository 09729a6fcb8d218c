package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

// Result is the outcome of one HTTP request.
type Result struct {
	Status int
	Body   string
	Err    error
}

type options struct {
	baseURL     string
	product     string
	start       int
	delta       int
	requests    int
	concurrency int
	timeout     time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loadtest:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Fire concurrent quantity adjustments and check none were lost",
		Long: `Resets a product to --start, sends --requests concurrent
POST /api/inventory/:name/adjust calls with --delta, then compares the final
quantity with start + delta * accepted requests.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base", "http://localhost:8080", "server base url")
	f.StringVar(&opts.product, "product", "Aspirin", "product name")
	f.IntVar(&opts.start, "start", 1000, "quantity to set before the test")
	f.IntVar(&opts.delta, "delta", 1, "delta sent by every request")
	f.IntVarP(&opts.requests, "requests", "n", 200, "total adjust requests")
	f.IntVarP(&opts.concurrency, "concurrency", "c", 50, "max concurrent requests")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Second, "per request timeout")
	return cmd
}

func run(out io.Writer, opts options) error {
	if opts.requests <= 0 || opts.concurrency <= 0 {
		return fmt.Errorf("--requests and --concurrency must be > 0")
	}
	client := &http.Client{Timeout: opts.timeout}
	productURL := fmt.Sprintf("%s/api/inventory/%s", opts.baseURL, url.PathEscape(opts.product))

	// reset first so the expected result is known
	if err := doJSON(client, http.MethodPut, productURL+"/quantity", map[string]int{"quantity": opts.start}); err != nil {
		return fmt.Errorf("reset quantity: %w", err)
	}
	fmt.Fprintf(out, "reset %s to %d\n", opts.product, opts.start)

	fmt.Fprintf(out, "start adjust test: product=%s requests=%d concurrency=%d delta=%d\n",
		opts.product, opts.requests, opts.concurrency, opts.delta)
	began := time.Now()
	results := runAdjust(client, productURL+"/adjust", opts.delta, opts.requests, opts.concurrency)
	elapsed := time.Since(began)

	printSummary(out, "adjust", results)
	fmt.Fprintf(out, "elapsed %s (%.0f req/s)\n", elapsed.Round(time.Millisecond), float64(len(results))/elapsed.Seconds())

	accepted := 0
	for _, r := range results {
		if r.Err == nil && r.Status == http.StatusOK {
			accepted++
		}
	}
	final, err := getQuantity(client, productURL)
	if err != nil {
		return fmt.Errorf("read final quantity: %w", err)
	}
	expected := opts.start + accepted*opts.delta
	fmt.Fprintf(out, "final quantity: %d (expected %d)\n", final, expected)
	if final != expected {
		return fmt.Errorf("lost updates: final quantity %d, expected %d", final, expected)
	}
	return nil
}

func runAdjust(client *http.Client, endpoint string, delta, total, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = postOnce(client, endpoint, map[string]int{"delta": delta})
		}(i)
	}

	wg.Wait()
	return results
}

func postOnce(client *http.Client, endpoint string, body any) Result {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(respBody)}
}

// printSummary prints how many requests ended with each status code.
func printSummary(out io.Writer, name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Fprintf(out, "[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 404, 409, 429, 500, 503} {
		if count[code] > 0 {
			fmt.Fprintf(out, "  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Fprintf(out, "  errors -> %d\n", errCount)
	}
}

// doJSON sends body as JSON and fails on any non 2xx status.
func doJSON(client *http.Client, method, endpoint string, body any) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, endpoint, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

func getQuantity(client *http.Client, productURL string) (int, error) {
	resp, err := client.Get(productURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Quantity int `json:"quantity"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Quantity, nil
}

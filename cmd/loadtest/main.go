package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   []byte
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:5000", "server base url")
	productID := flag.Int("product", 1, "product id to review")
	nUsers := flag.Int("users", 100, "distinct buyers")
	concurrency := flag.Int("c", 50, "max concurrency")
	reviewBurst := flag.Int("reviews", 20, "concurrent duplicate reviews from one user")
	burst := flag.Int("burst", 60, "orders from one user to trip the write rate limit")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}
	run := uuid.NewString()[:8]
	failed := false

	// 1) 并发注册
	fmt.Printf("register %d users (run=%s)\n", *nUsers, run)
	tokens := make([]string, *nUsers)
	regs := fanOut(*nUsers, *concurrency, func(i int) Result {
		res := call(client, http.MethodPost, *baseURL+"/api/auth/register", "", map[string]string{
			"name":     fmt.Sprintf("load-%s-%d", run, i),
			"email":    fmt.Sprintf("load-%s-%d@example.com", run, i),
			"password": "loadtest",
		})
		var out struct {
			Token string `json:"token"`
		}
		if res.Err == nil && json.Unmarshal(res.Body, &out) == nil {
			tokens[i] = out.Token
		}
		return res
	})
	printSummary("register", regs)

	// 2) 并发下单，订单号必须全局唯一
	fmt.Printf("\nstart checkout test: users=%d concurrency=%d\n", *nUsers, *concurrency)
	numbers := make([]string, *nUsers)
	orders := fanOut(*nUsers, *concurrency, func(i int) Result {
		if tokens[i] == "" {
			return Result{Err: fmt.Errorf("user %d not registered", i)}
		}
		res := call(client, http.MethodPost, *baseURL+"/api/orders", tokens[i], orderBody(i))
		var out struct {
			Order struct {
				OrderNumber string `json:"order_number"`
			} `json:"order"`
		}
		if res.Err == nil && json.Unmarshal(res.Body, &out) == nil {
			numbers[i] = out.Order.OrderNumber
		}
		return res
	})
	printSummary("checkout", orders)
	if dup := duplicates(numbers); len(dup) > 0 {
		fmt.Printf("  DUPLICATE order numbers: %v\n", dup)
		failed = true
	} else {
		fmt.Println("  order numbers unique")
	}

	// 3) 同一用户并发评价同一商品，只能成功一次
	if tokens[0] != "" {
		fmt.Printf("\nstart duplicate review test: product=%d burst=%d\n", *productID, *reviewBurst)
		reviews := fanOut(*reviewBurst, *reviewBurst, func(i int) Result {
			return call(client, http.MethodPost, *baseURL+"/api/reviews", tokens[0], map[string]any{
				"productId": *productID,
				"rating":    1 + i%5,
				"comment":   "load test",
			})
		})
		printSummary("review", reviews)
		if n := countStatus(reviews, http.StatusCreated); n > 1 {
			fmt.Printf("  %d reviews accepted for one user\n", n)
			failed = true
		}
	}

	// 4) 限流：同一用户连续下单（需要服务端配置 REDIS_ADDR）
	if len(tokens) > 1 && tokens[1] != "" {
		fmt.Printf("\nstart rate limit test: same user, %d orders\n", *burst)
		limited := fanOut(*burst, *burst, func(i int) Result {
			return call(client, http.MethodPost, *baseURL+"/api/orders", tokens[1], orderBody(i))
		})
		printSummary("rate_limit", limited)
	}

	if failed {
		os.Exit(1)
	}
}

func orderBody(i int) map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"id": 1, "name": "Load item", "price": 9.99, "quantity": 1 + i%3},
		},
		"totalAmount":     9.99 * float64(1+i%3),
		"shippingAddress": map[string]string{"street": "1 rue de la Paix", "city": "Paris", "postalCode": "75002", "country": "FR"},
		"paymentMethod":   "Card",
		"paymentStatus":   "Pending",
	}
}

// fanOut 以至多 concurrency 个并发执行 n 次 fn。
func fanOut(n, concurrency int, fn func(i int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

func call(client *http.Client, method, url, token string, body any) Result {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: b}
}

func duplicates(values []string) []string {
	seen := map[string]bool{}
	var dup []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if seen[v] {
			dup = append(dup, v)
		}
		seen[v] = true
	}
	return dup
}

func countStatus(results []Result, status int) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.Status == status {
			n++
		}
	}
	return n
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 201, 400, 401, 404, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// README: Benchmark cases; covers environment, auth, claim/advance/tip flow, concurrency and load checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const geoKey = "geo:drivers"

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// winner is the driver that won the concurrent claim; later cases act as it.
	winner     string
	progressID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "db reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply migration SQL",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				sql, err := os.ReadFile(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, s := range splitSQL(string(sql)) {
					if _, err := r.db.Exec(ctx, s); err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the migration are present",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				tables, err := extractTables(r.cfg.MigrationPath)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("tables=%d", len(tables))}
			},
		},
		{
			Name:  "Redis: driver GEO index",
			Focus: "geo index readable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				n, err := r.redis.ZCard(ctx, geoKey).Result()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("drivers=%d", n)}
			},
		},

		httpCase("API: health", http.MethodGet, base+"/health", "", nil, []int{200}),
		{
			Name:  "API: metrics exposed",
			Focus: "prometheus endpoint carries dispatch metrics",
			Run: func(ctx context.Context, r *Runner) Result {
				status, body, latency, err := r.do(ctx, http.MethodGet, base+"/metrics", "", nil)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK || !strings.Contains(string(body), "flashfood_") {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},
		httpCase("Auth: missing token -> 401", http.MethodGet, base+"/api/orders/o1", "", nil, []int{401}),
		httpCase("Auth: bad token -> 401", http.MethodGet, base+"/api/orders/o1", "not-a-token", nil, []int{401}),

		// Claim flow
		{
			Name:  "Concurrency: drivers race for one order",
			Focus: "exactly one driver wins the claim",
			Run:   concurrentClaim,
		},
		{
			Name:  "Claim: winner re-claim is idempotent",
			Focus: "repeat claim by owner returns 200",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.winner == "" {
					return Result{Status: "SKIP", Note: "no claim winner"}
				}
				return r.expect(ctx, http.MethodPost, r.claimURL(r.winner), r.cfg.Drivers[r.winner], nil, 200)
			},
		},
		{
			Name:  "Claim: other driver -> 409",
			Focus: "assigned order is not re-assigned",
			Run: func(ctx context.Context, r *Runner) Result {
				loser := r.otherDriver()
				if loser == "" {
					return Result{Status: "SKIP", Note: "needs two drivers"}
				}
				return r.expect(ctx, http.MethodPost, r.claimURL(loser), r.cfg.Drivers[loser], nil, 409)
			},
		},
		{
			Name:  "Claim: acting for another driver -> 403",
			Focus: "driver id must match the token",
			Run: func(ctx context.Context, r *Runner) Result {
				loser := r.otherDriver()
				if loser == "" {
					return Result{Status: "SKIP", Note: "needs two drivers"}
				}
				return r.expect(ctx, http.MethodPost, r.claimURL(r.winner), r.cfg.Drivers[loser], nil, 403)
			},
		},
		{
			Name:  "Order: driver recorded",
			Focus: "order reflects the winning driver",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.winner == "" {
					return Result{Status: "SKIP", Note: "no claim winner"}
				}
				status, body, latency, err := r.do(ctx, http.MethodGet, base+"/api/orders/"+r.cfg.OrderID, r.cfg.Drivers[r.winner], nil)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				var out struct {
					Order struct {
						DriverID *string `json:"driver_id"`
					} `json:"order"`
				}
				_ = json.Unmarshal(body, &out)
				if status != http.StatusOK || out.Order.DriverID == nil || *out.Order.DriverID != r.winner {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},

		// Tip
		{
			Name:  "Tip: negative amount -> 400",
			Focus: "tips are validated",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.winner == "" || r.cfg.CustomerToken == "" {
					return Result{Status: "SKIP", Note: "needs claim winner and customer token"}
				}
				return r.expect(ctx, http.MethodPost, r.tipURL(), r.cfg.CustomerToken, map[string]any{"amount": -1}, 400)
			},
		},
		{
			Name:  "Concurrency: tips while advancing",
			Focus: "tips and stage updates on one progress never fail with 500",
			Run:   concurrentTipAdvance,
		},

		// Load
		{
			Name:  "Perf: location update throughput",
			Focus: "sustained driver location updates",
			Run: func(ctx context.Context, r *Runner) Result {
				id, token := r.anyDriver()
				if id == "" {
					return Result{Status: "SKIP", Note: "no driver token"}
				}
				return perfLoad(ctx, r, http.MethodPut, base+"/api/drivers/"+id+"/location", token, map[string]any{
					"lat": 10.7769,
					"lng": 106.7009,
				})
			},
		},
	}
}

func (r *Runner) claimURL(driverID string) string {
	return r.cfg.BaseURL + "/api/drivers/" + driverID + "/orders/" + r.cfg.OrderID + "/claim"
}

func (r *Runner) tipURL() string {
	return r.cfg.BaseURL + "/api/orders/" + r.cfg.OrderID + "/tip"
}

func (r *Runner) driverIDs() []string {
	ids := make([]string, 0, len(r.cfg.Drivers))
	for id := range r.cfg.Drivers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Runner) anyDriver() (string, string) {
	if r.winner != "" {
		return r.winner, r.cfg.Drivers[r.winner]
	}
	ids := r.driverIDs()
	if len(ids) == 0 {
		return "", ""
	}
	return ids[0], r.cfg.Drivers[ids[0]]
}

func (r *Runner) otherDriver() string {
	if r.winner == "" {
		return ""
	}
	for _, id := range r.driverIDs() {
		if id != r.winner {
			return id
		}
	}
	return ""
}

func (r *Runner) do(ctx context.Context, method, url, token string, body any) (int, []byte, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, 0, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, time.Since(start), err
}

func (r *Runner) expect(ctx context.Context, method, url, token string, body any, want ...int) Result {
	status, _, latency, err := r.do(ctx, method, url, token, body)
	if err != nil {
		return Result{Status: "FAIL", Note: err.Error()}
	}
	if contains(want, status) {
		return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
	}
	return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func httpCase(name, method, url, token string, body any, okStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, method, url, token, body, okStatuses...)
		},
	}
}

func concurrentClaim(ctx context.Context, r *Runner) Result {
	if r.cfg.OrderID == "" || len(r.cfg.Drivers) == 0 {
		return Result{Status: "SKIP", Note: "needs -order and -drivers"}
	}

	type outcome struct {
		driver string
		status int
		body   []byte
	}
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []outcome
	)
	start := time.Now()
	for _, id := range r.driverIDs() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			status, body, _, err := r.do(ctx, http.MethodPost, r.claimURL(id), r.cfg.Drivers[id], nil)
			if err != nil {
				return
			}
			mu.Lock()
			out = append(out, outcome{driver: id, status: status, body: body})
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	latency := time.Since(start)

	wins := 0
	for _, o := range out {
		switch {
		case o.status == http.StatusOK:
			wins++
			r.winner = o.driver
			var res struct {
				Aggregate struct {
					ID string `json:"id"`
				} `json:"aggregate"`
			}
			if err := json.Unmarshal(o.body, &res); err == nil {
				r.progressID = res.Aggregate.ID
			}
		case o.status >= 500:
			return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("driver %s got status=%d", o.driver, o.status)}
		}
	}
	if wins != 1 {
		return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("success=%d", wins)}
	}
	return Result{Status: "PASS", Latency: latency, Note: "winner=" + r.winner}
}

func concurrentTipAdvance(ctx context.Context, r *Runner) Result {
	if r.winner == "" || r.progressID == "" || r.cfg.CustomerToken == "" {
		return Result{Status: "SKIP", Note: "needs claim winner and customer token"}
	}
	advanceURL := r.cfg.BaseURL + "/api/progress/" + r.progressID + "/advance"
	driverToken := r.cfg.Drivers[r.winner]

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tips   int
		failed []int
	)
	record := func(status int, tip bool) {
		mu.Lock()
		defer mu.Unlock()
		if status >= 500 {
			failed = append(failed, status)
		}
		if tip && status == http.StatusOK {
			tips++
		}
	}
	n := r.cfg.Concurrency
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			status, _, _, err := r.do(ctx, http.MethodPost, r.tipURL(), r.cfg.CustomerToken, map[string]any{"amount": 1000})
			if err == nil {
				record(status, true)
			}
		}()
		go func() {
			defer wg.Done()
			status, _, _, err := r.do(ctx, http.MethodPost, advanceURL, driverToken, map[string]any{"order_id": r.cfg.OrderID})
			if err == nil {
				record(status, false)
			}
		}()
	}
	wg.Wait()

	if len(failed) > 0 {
		return Result{Status: "FAIL", Note: fmt.Sprintf("server errors=%d", len(failed))}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("tips=%d/%d", tips, n)}
}

func perfLoad(ctx context.Context, r *Runner, method, url, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) {
				status, _, _, err := r.do(ctx, method, url, token, payload)
				mu.Lock()
				if err != nil || status >= 400 {
					errCount++
				} else {
					count++
				}
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

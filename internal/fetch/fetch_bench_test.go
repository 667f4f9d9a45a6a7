package fetch

import (
    "context"
    "net/http"
    "net/http/httptest"
    "testing"
    "time"
)

// Benchmark the fetch.Client under different concurrency limits.
func BenchmarkClient_FetchConcurrency(b *testing.B) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>ok</title></head><body><ms-chat-turn data-turn-role="User"><div class="turn-content">hello</div></ms-chat-turn></body></html>`))
	})
	mux.HandleFunc("/payload", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"t","messages":[{"role":"user","content":"hi"}]}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	runScenario := func(name string, path string, maxConc int) {
		b.Run(name, func(b *testing.B) {
			cli := &Client{
				HTTPClient:        ts.Client(),
				UserAgent:         "bench/1",
				MaxAttempts:       1,
				PerRequestTimeout: 2 * time.Second,
				MaxConcurrent:     maxConc,
			}
			url := ts.URL + path
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					_, _, err := cli.Get(ctx, url)
					cancel()
					if err != nil {
						b.Fatalf("fetch failed: %v", err)
					}
				}
			})
		})
	}

	runScenario("page,conc=1", "/page", 1)
	runScenario("page,conc=8", "/page", 8)
	runScenario("payload,conc=8", "/payload", 8)
}

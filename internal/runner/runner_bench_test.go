package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"benchmark-verifier/internal/request"
	"benchmark-verifier/internal/testtypes"
	"benchmark-verifier/internal/testtypes/query"
	"benchmark-verifier/internal/testutil"
	"benchmark-verifier/internal/verification"
)

func BenchmarkRunAll(b *testing.B) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := verification.TranslateQueryCount(r.URL.Query().Get("count"), query.MinQueries, query.MaxQueries)
		items := make([]map[string]int, n)
		for i := range items {
			items[i] = map[string]int{"id": i + 1, "randomNumber": i + 1}
		}
		w.Header().Set("Server", "bench")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(items)
	}))
	defer server.Close()

	client := request.NewClient(5 * time.Second)
	for _, parallel := range []int{1, 4} {
		b.Run(fmt.Sprintf("parallel=%d", parallel), func(b *testing.B) {
			jobs := make([]Job, 8)
			for i := range jobs {
				exec := &query.CachedQuery{Base: testtypes.NewBase([]int{8}, testutil.NewFakeDatabase(10), client)}
				jobs[i] = Job{Name: fmt.Sprintf("cached_query-%d", i), URL: server.URL + "/cached-worlds?count=", Executor: exec}
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				results, err := RunAll(context.Background(), jobs, parallel, nil)
				if err != nil {
					b.Fatalf("RunAll failed: %v", err)
				}
				for _, r := range results {
					if !r.Passed() {
						b.Fatalf("%s failed: %+v", r.Name, r.Messages.Findings())
					}
				}
			}
		})
	}
}

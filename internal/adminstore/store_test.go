package adminstore

import "testing"

// newTestStore opens a private named in-memory database with the usual
// shared-cache DSN pattern, giving each test its own namespace so row
// counts from one test never leak into another.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := Open(dsn)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func TestRecordAsyncAndStats(t *testing.T) {
	store := newTestStore(t)

	store.RecordAsync(RequestLog{Dialect: "openai", Model: "gpt-5", Status: 200, InputTokens: 10, OutputTokens: 5})
	store.RecordAsync(RequestLog{Dialect: "anthropic", Model: "claude-opus-4.5", Status: 500, Error: "boom"})

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalRequests != 2 {
		t.Fatalf("expected 2 total requests, got %d", stats.TotalRequests)
	}
	if stats.SuccessCount != 1 || stats.ErrorCount != 1 {
		t.Fatalf("expected 1 success and 1 error, got success=%d error=%d", stats.SuccessCount, stats.ErrorCount)
	}
}

func TestRecentRequestsOrdering(t *testing.T) {
	store := newTestStore(t)

	store.RecordAsync(RequestLog{Dialect: "openai", Model: "gpt-5", Status: 200, Timestamp: 100})
	store.RecordAsync(RequestLog{Dialect: "openai", Model: "gpt-5", Status: 200, Timestamp: 200})

	logs, err := store.RecentRequests(1)
	if err != nil {
		t.Fatalf("recent requests: %v", err)
	}
	if len(logs) != 1 || logs[0].Timestamp != 200 {
		t.Fatalf("expected newest entry first, got %+v", logs)
	}
}

func TestUpsertRouteUpdatesExisting(t *testing.T) {
	store := newTestStore(t)

	store.UpsertRoute("claude-opus-4.5", "gemini-3-pro-high-thinking", true)
	store.UpsertRoute("claude-opus-4.5", "gemini-3-pro-high-thinking-2", false)

	routes, err := store.ListRoutes()
	if err != nil {
		t.Fatalf("list routes: %v", err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected a single route to persist across updates, got %d", len(routes))
	}
	if routes[0].WireModel != "gemini-3-pro-high-thinking-2" || routes[0].IsThinking {
		t.Fatalf("expected updated route, got %+v", routes[0])
	}
}

func TestNilStoreIsSafe(t *testing.T) {
	var store *Store
	store.RecordAsync(RequestLog{Model: "gpt-5"})
	store.UpsertRoute("gpt-5", "gemini-3-pro", false)

	if _, err := store.Stats(); err != nil {
		t.Fatalf("nil store Stats should be a no-op, got %v", err)
	}
	if _, err := store.RecentRequests(10); err != nil {
		t.Fatalf("nil store RecentRequests should be a no-op, got %v", err)
	}
	if _, err := store.ListRoutes(); err != nil {
		t.Fatalf("nil store ListRoutes should be a no-op, got %v", err)
	}
}

package client

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/just-h/yoinker-detector/internal/testutil"
	"github.com/just-h/yoinker-detector/pkg/cache"
	"github.com/just-h/yoinker-detector/pkg/ratelimit"
)

// testClient builds a client against the mock service with test-scale
// backoffs and a limiter that never blocks.
func testClient(t *testing.T, mock *testutil.MockService, cfg Config) (*Client, *cache.Ledger, *cache.SnapshotStore) {
	t.Helper()
	dir := t.TempDir()

	ledger, err := cache.OpenLedger(filepath.Join(dir, "404.txt"))
	if err != nil {
		t.Fatal(err)
	}
	snapshots, err := cache.NewSnapshotStore(filepath.Join(dir, "yoinkers"))
	if err != nil {
		t.Fatal(err)
	}
	memo := cache.NewMemoryMemo(30*time.Minute, 512)
	resolver := cache.NewResolver(memo, ledger, snapshots, zerolog.Nop())
	limiter := ratelimit.New(1000, time.Minute, zerolog.Nop())

	cfg.BaseURL = mock.URL()
	c, err := New(cfg, limiter, resolver)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c, ledger, snapshots
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TransientBackoff = time.Millisecond
	cfg.ThrottleBackoff = 50 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func TestHashID(t *testing.T) {
	// Well-known SHA-256 of the empty string.
	if got := HashID(""); got != "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855" {
		t.Errorf("HashID(\"\") = %s", got)
	}
	if HashID("usr_a") == HashID("usr_b") {
		t.Error("distinct identifiers hashed to the same path")
	}
	if len(HashID("usr_a")) != 64 {
		t.Errorf("HashID length = %d, want 64", len(HashID("usr_a")))
	}
}

func TestLookup_Found(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_a", testutil.Positive("usr_a", "Foo", "2024", "spam"))

	c, _, _ := testClient(t, mock, fastConfig())
	res := c.Lookup(context.Background(), "usr_a")

	if !res.Found() {
		t.Fatalf("Lookup() outcome = %v, want found", res.Outcome)
	}
	if res.Record.UserName != "Foo" || res.Record.Year != "2024" || res.Record.Reason != "spam" {
		t.Errorf("Lookup() record = %+v", res.Record)
	}
	if n := mock.RequestsFor("usr_a"); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestLookup_SecondCallServedFromMemo(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_a", testutil.Positive("usr_a", "Foo", "2024", "spam"))

	c, _, _ := testClient(t, mock, fastConfig())
	ctx := context.Background()

	c.Lookup(ctx, "usr_a")
	res := c.Lookup(ctx, "usr_a")

	if !res.Found() {
		t.Fatalf("second Lookup() outcome = %v, want found", res.Outcome)
	}
	if n := mock.RequestsFor("usr_a"); n != 1 {
		t.Errorf("requests = %d after two lookups, want 1 (memo hit)", n)
	}
}

func TestLookup_NotFoundVariants(t *testing.T) {
	tests := []struct {
		name string
		resp testutil.MockResponse
	}{
		{name: "http 404", resp: testutil.NotFound()},
		{name: "200 negative flag", resp: testutil.Negative("usr_n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockService()
			defer mock.Close()
			mock.Respond("usr_n", tt.resp)

			c, _, _ := testClient(t, mock, fastConfig())
			res := c.Lookup(context.Background(), "usr_n")

			if res.Outcome != cache.OutcomeNotFound {
				t.Errorf("Lookup() outcome = %v, want not_found", res.Outcome)
			}
			if n := mock.RequestsFor("usr_n"); n != 1 {
				t.Errorf("requests = %d, want 1", n)
			}
		})
	}
}

func TestLookup_LedgeredIdentifierNeverQueried(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_led", testutil.Positive("usr_led", "X", "2024", "y"))

	c, ledger, _ := testClient(t, mock, fastConfig())
	if err := ledger.Append("usr_led"); err != nil {
		t.Fatal(err)
	}

	res := c.Lookup(context.Background(), "usr_led")
	if res.Outcome != cache.OutcomeNotFound {
		t.Errorf("Lookup() outcome = %v, want not_found from ledger", res.Outcome)
	}
	if n := mock.RequestsFor("usr_led"); n != 0 {
		t.Errorf("requests = %d for ledgered identifier, want 0", n)
	}
}

func TestLookup_PositiveSnapshotShortCircuits(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()

	c, _, snapshots := testClient(t, mock, fastConfig())
	if err := snapshots.Write("usr_snap", &cache.Record{UserID: "usr_snap", UserName: "Snap", IsYoinker: true}); err != nil {
		t.Fatal(err)
	}

	res := c.Lookup(context.Background(), "usr_snap")
	if !res.Found() || res.Record.UserName != "Snap" {
		t.Errorf("Lookup() = %+v, want snapshot hit", res)
	}
	if n := mock.TotalRequests(); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestLookup_CorruptSnapshotDegradesToNetworkLookup(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_bad", testutil.Positive("usr_bad", "Foo", "2024", "spam"))

	c, _, snapshots := testClient(t, mock, fastConfig())
	path := filepath.Join(snapshots.Dir(), "usr_bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := c.Lookup(context.Background(), "usr_bad")
	if !res.Found() || res.Record.UserName != "Foo" {
		t.Fatalf("Lookup() = %+v, want fresh network result", res)
	}
	if n := mock.RequestsFor("usr_bad"); n != 1 {
		t.Errorf("requests = %d, want 1 (corrupt snapshot re-queried)", n)
	}
}

func TestLookup_TransientRetriesThenSuccess(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_t",
		testutil.ServerError(),
		testutil.ServerError(),
		testutil.Positive("usr_t", "T", "2023", "ban evasion"),
	)

	c, _, _ := testClient(t, mock, fastConfig())
	res := c.Lookup(context.Background(), "usr_t")

	if !res.Found() {
		t.Fatalf("Lookup() outcome = %v, want found after retries", res.Outcome)
	}
	if n := mock.RequestsFor("usr_t"); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestLookup_TransientBudgetExhausted(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_x", testutil.ServerError())

	c, _, _ := testClient(t, mock, fastConfig())
	res := c.Lookup(context.Background(), "usr_x")

	if res.Outcome != cache.OutcomeUnresolved {
		t.Fatalf("Lookup() outcome = %v, want unresolved", res.Outcome)
	}
	var lerr *LookupError
	if !errors.As(res.Err, &lerr) || lerr.Class != ErrorClassTransient {
		t.Errorf("Lookup() err = %v, want transient LookupError", res.Err)
	}
	// 1 initial + 3 retries.
	if n := mock.RequestsFor("usr_x"); n != 4 {
		t.Errorf("requests = %d, want 4", n)
	}
}

func TestLookup_MalformedBodyIsTransient(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_m",
		testutil.Malformed(),
		testutil.Positive("usr_m", "M", "2022", "spam"),
	)

	c, _, _ := testClient(t, mock, fastConfig())
	res := c.Lookup(context.Background(), "usr_m")

	if !res.Found() {
		t.Errorf("Lookup() outcome = %v, want found after malformed body retry", res.Outcome)
	}
	if n := mock.RequestsFor("usr_m"); n != 2 {
		t.Errorf("requests = %d, want 2", n)
	}
}

func TestLookup_ThrottleBackoffDoesNotConsumeBudget(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	// More 429s than the transient budget would allow.
	mock.Respond("usr_c",
		testutil.Throttled(),
		testutil.Throttled(),
		testutil.Throttled(),
		testutil.Throttled(),
		testutil.Throttled(),
		testutil.Positive("usr_c", "C", "2024", "spam"),
	)

	cfg := fastConfig()
	cfg.TransientRetries = 0
	cfg.ThrottleBackoff = time.Millisecond

	c, _, _ := testClient(t, mock, cfg)
	res := c.Lookup(context.Background(), "usr_c")

	if !res.Found() {
		t.Fatalf("Lookup() outcome = %v, want found", res.Outcome)
	}
	if n := mock.RequestsFor("usr_c"); n != 6 {
		t.Errorf("requests = %d, want 6", n)
	}
}

func TestLookup_ThrottleGapRespected(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_c",
		testutil.Throttled(),
		testutil.Positive("usr_c", "C", "2024", "spam"),
	)

	cfg := fastConfig()
	cfg.ThrottleBackoff = 100 * time.Millisecond

	c, _, _ := testClient(t, mock, cfg)
	start := time.Now()
	res := c.Lookup(context.Background(), "usr_c")
	elapsed := time.Since(start)

	if !res.Found() {
		t.Fatalf("Lookup() outcome = %v, want found", res.Outcome)
	}
	// The gap between the throttled attempt and the retry is at least
	// the configured backoff (60s in production).
	if elapsed < cfg.ThrottleBackoff {
		t.Errorf("elapsed = %v, want >= %v", elapsed, cfg.ThrottleBackoff)
	}
}

func TestLookup_TimeoutIsBudgeted(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_slow", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"isYoinker": true}`,
		Delay:      300 * time.Millisecond,
	})

	cfg := fastConfig()
	cfg.Timeout = 30 * time.Millisecond
	cfg.TransientRetries = 1

	c, _, _ := testClient(t, mock, cfg)
	res := c.Lookup(context.Background(), "usr_slow")

	if res.Outcome != cache.OutcomeUnresolved {
		t.Fatalf("Lookup() outcome = %v, want unresolved", res.Outcome)
	}
	var lerr *LookupError
	if !errors.As(res.Err, &lerr) || lerr.Class != ErrorClassTimeout {
		t.Errorf("Lookup() err = %v, want timeout LookupError", res.Err)
	}
}

func TestLookup_UnresolvedNotMemoized(t *testing.T) {
	mock := testutil.NewMockService()
	defer mock.Close()
	mock.Respond("usr_u",
		testutil.ServerError(),
		testutil.ServerError(),
		testutil.ServerError(),
		testutil.ServerError(),
		testutil.Positive("usr_u", "U", "2021", "spam"),
	)

	c, _, _ := testClient(t, mock, fastConfig())
	ctx := context.Background()

	if res := c.Lookup(ctx, "usr_u"); res.Outcome != cache.OutcomeUnresolved {
		t.Fatalf("first Lookup() outcome = %v, want unresolved", res.Outcome)
	}

	// Unresolved was not cached, so the next run's lookup goes back to
	// the network and succeeds.
	if res := c.Lookup(ctx, "usr_u"); !res.Found() {
		t.Errorf("second Lookup() outcome = %v, want found", res.Outcome)
	}
}

func TestNew_Validation(t *testing.T) {
	limiter := ratelimit.New(15, time.Minute, zerolog.Nop())

	if _, err := New(DefaultConfig(), nil, nil); err == nil {
		t.Error("New() with nil limiter and resolver succeeded, want error")
	}
	if _, err := New(DefaultConfig(), limiter, nil); err == nil {
		t.Error("New() with nil resolver succeeded, want error")
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"craftai/internal/adapters"
	"craftai/pkg/domain"
	"craftai/pkg/store"
)

type fakeResolver struct {
	mu    sync.Mutex
	plans map[string]domain.Tier
	usage map[string]int

	incrementErr error
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		plans: make(map[string]domain.Tier),
		usage: make(map[string]int),
	}
}

func (f *fakeResolver) Resolve(ctx context.Context, userID string) (domain.EntitlementSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	plan, ok := f.plans[userID]
	if !ok {
		plan = domain.TierFree
	}
	return domain.EntitlementSnapshot{Plan: plan, FreeUsage: f.usage[userID]}, nil
}

func (f *fakeResolver) IncrementFreeUsage(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.usage[userID]++
	return nil
}

func (f *fakeResolver) usageOf(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[userID]
}

type fakeAdapter struct {
	mu     sync.Mutex
	calls  int
	result domain.ProviderResult
	err    error
	invoke func(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error)
}

func (f *fakeAdapter) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.invoke != nil {
		return f.invoke(ctx, req)
	}
	return f.result, f.err
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type failingLedger struct{}

func (failingLedger) AppendCreation(domain.Creation) error { return errors.New("db down") }

func (failingLedger) ListCreationsByUser(string, int) ([]domain.Creation, error) { return nil, nil }

func (failingLedger) ListPublished(int) ([]domain.Creation, error) { return nil, nil }

type fakeOrphans struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeOrphans) Enqueue(ctx context.Context, storageKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, storageKey)
	return nil
}

func (f *fakeOrphans) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.keys...)
}

type harness struct {
	app      *App
	resolver *fakeResolver
	ledger   *store.MemoryStore
	adapters map[domain.Capability]*fakeAdapter
	orphans  *fakeOrphans
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	resolver := newFakeResolver()
	ledger := store.NewMemoryStore()
	orphans := &fakeOrphans{}
	fakes := map[domain.Capability]*fakeAdapter{
		domain.CapabilityTextCompletion:    {result: domain.ProviderResult{Content: "generated text"}},
		domain.CapabilityImageSynthesis:    {result: domain.ProviderResult{Content: "https://store.example/generated/a.png", StorageKey: "generated/a.png"}},
		domain.CapabilityBackgroundRemoval: {result: domain.ProviderResult{Content: "https://store.example/derived/b.png", StorageKey: "derived/b.png"}},
		domain.CapabilityObjectRemoval:     {result: domain.ProviderResult{Content: "https://store.example/derived/c.png", StorageKey: "derived/c.png"}},
		domain.CapabilityDocumentReview:    {result: domain.ProviderResult{Content: "**Summary** solid"}},
	}
	cfg := Config{
		Resolver: resolver,
		Ledger:   ledger,
		Adapters: map[domain.Capability]Adapter{},
		Orphans:  orphans,
	}
	for capability, fake := range fakes {
		cfg.Adapters[capability] = fake
	}
	if mutate != nil {
		mutate(&cfg)
	}
	core, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return &harness{app: core, resolver: resolver, ledger: ledger, adapters: fakes, orphans: orphans}
}

func validRequest(userID string, capability domain.Capability) domain.GenerationRequest {
	req := domain.GenerationRequest{UserID: userID, Capability: capability}
	switch capability {
	case domain.CapabilityTextCompletion:
		req.Prompt = "write an article about tides"
		req.MaxTokens = 800
	case domain.CapabilityImageSynthesis:
		req.Prompt = "a lighthouse at dusk"
	case domain.CapabilityBackgroundRemoval:
		req.FilePath = "/tmp/staged/photo.png"
		req.FileName = "photo.png"
	case domain.CapabilityObjectRemoval:
		req.FilePath = "/tmp/staged/photo.png"
		req.FileName = "photo.png"
		req.ObjectName = "watch"
	case domain.CapabilityDocumentReview:
		req.FilePath = "/tmp/staged/resume.pdf"
		req.FileName = "resume.pdf"
		req.FileSize = 64 << 10
	}
	return req
}

func (h *harness) generate(t *testing.T, userID string, capability domain.Capability) (domain.Creation, error) {
	t.Helper()
	snapshot, err := h.resolver.Resolve(context.Background(), userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	return h.app.Generate(context.Background(), snapshot, validRequest(userID, capability))
}

func TestFreeTierExhaustsAfterLimit(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < defaultFreeLimit; i++ {
		if _, err := h.generate(t, "free-user", domain.CapabilityTextCompletion); err != nil {
			t.Fatalf("generation %d should be admitted: %v", i+1, err)
		}
	}
	if got := h.resolver.usageOf("free-user"); got != defaultFreeLimit {
		t.Fatalf("expected usage %d, got %d", defaultFreeLimit, got)
	}

	// The 11th and 12th attempts are both rejected identically with no side
	// effects: rejection is idempotent.
	for attempt := 0; attempt < 2; attempt++ {
		_, err := h.generate(t, "free-user", domain.CapabilityTextCompletion)
		if !errors.Is(err, ErrLimitReached) {
			t.Fatalf("attempt %d: expected ErrLimitReached, got %v", attempt+1, err)
		}
	}
	if got := h.resolver.usageOf("free-user"); got != defaultFreeLimit {
		t.Fatalf("rejection must not change usage, got %d", got)
	}
	records, _ := h.ledger.ListCreationsByUser("free-user", 100)
	if len(records) != defaultFreeLimit {
		t.Fatalf("expected %d ledger records, got %d", defaultFreeLimit, len(records))
	}
}

func TestPremiumNeverRejectedByCounter(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["premium-user"] = domain.TierPremium
	h.resolver.usage["premium-user"] = 9999

	if _, err := h.generate(t, "premium-user", domain.CapabilityTextCompletion); err != nil {
		t.Fatalf("premium user rejected: %v", err)
	}
	if _, err := h.generate(t, "premium-user", domain.CapabilityImageSynthesis); err != nil {
		t.Fatalf("premium capability rejected: %v", err)
	}
	if got := h.resolver.usageOf("premium-user"); got != 9999 {
		t.Fatalf("premium generations must not charge quota, got %d", got)
	}
}

func TestPremiumGateRejectsFreeUsers(t *testing.T) {
	h := newHarness(t, nil)
	gated := []domain.Capability{
		domain.CapabilityImageSynthesis,
		domain.CapabilityBackgroundRemoval,
		domain.CapabilityObjectRemoval,
		domain.CapabilityDocumentReview,
	}
	for _, capability := range gated {
		_, err := h.generate(t, "free-user", capability)
		if !errors.Is(err, ErrPremiumRequired) {
			t.Fatalf("%s: expected ErrPremiumRequired, got %v", capability, err)
		}
		if h.adapters[capability].callCount() != 0 {
			t.Fatalf("%s: adapter must not be invoked for rejected request", capability)
		}
	}
	if got := h.resolver.usageOf("free-user"); got != 0 {
		t.Fatalf("gate rejection must not charge quota, got %d", got)
	}
}

func TestFailingAdapterChargesNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["user-1"] = domain.TierPremium
	for capability, fake := range h.adapters {
		fake.result = domain.ProviderResult{}
		fake.err = fmt.Errorf("remote %s exploded", capability)
	}
	for capability := range h.adapters {
		_, err := h.generate(t, "user-1", capability)
		var adapterErr *AdapterError
		if !errors.As(err, &adapterErr) {
			t.Fatalf("%s: expected AdapterError, got %v", capability, err)
		}
		if adapterErr.Capability != capability {
			t.Fatalf("expected failure tagged %s, got %s", capability, adapterErr.Capability)
		}
	}
	if got := h.resolver.usageOf("user-1"); got != 0 {
		t.Fatalf("failed generations must not charge quota, got %d", got)
	}
	records, _ := h.ledger.ListCreationsByUser("user-1", 100)
	if len(records) != 0 {
		t.Fatalf("failed generations must not be recorded, got %d", len(records))
	}
}

func TestAdapterTimeoutIsDistinguished(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.AdapterTimeout = 20 * time.Millisecond
	})
	h.adapters[domain.CapabilityTextCompletion].invoke = func(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
		<-ctx.Done()
		return domain.ProviderResult{}, ctx.Err()
	}
	_, err := h.generate(t, "free-user", domain.CapabilityTextCompletion)
	var adapterErr *AdapterError
	if !errors.As(err, &adapterErr) {
		t.Fatalf("expected AdapterError, got %v", err)
	}
	if !adapterErr.Timeout {
		t.Fatalf("expected timeout classification, got %v", adapterErr)
	}
	if got := h.resolver.usageOf("free-user"); got != 0 {
		t.Fatalf("timed-out generation must not charge quota, got %d", got)
	}
}

func TestMultiWordObjectNameRejectedBeforeInvoke(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["premium-user"] = domain.TierPremium

	req := validRequest("premium-user", domain.CapabilityObjectRemoval)
	req.ObjectName = "watch spoon"
	snapshot, _ := h.resolver.Resolve(context.Background(), "premium-user")
	_, err := h.app.Generate(context.Background(), snapshot, req)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if h.adapters[domain.CapabilityObjectRemoval].callCount() != 0 {
		t.Fatalf("adapter must not be invoked for invalid object name")
	}
}

func TestOversizeDocumentRejectedBeforeInvoke(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["premium-user"] = domain.TierPremium

	req := validRequest("premium-user", domain.CapabilityDocumentReview)
	req.FileSize = maxDocumentBytes + 1
	snapshot, _ := h.resolver.Resolve(context.Background(), "premium-user")
	_, err := h.app.Generate(context.Background(), snapshot, req)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if h.adapters[domain.CapabilityDocumentReview].callCount() != 0 {
		t.Fatalf("adapter must not be invoked for oversize document")
	}
}

func TestShortDocumentSurfacesAsValidation(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["premium-user"] = domain.TierPremium
	h.adapters[domain.CapabilityDocumentReview].err = adapters.ErrDocumentTooShort
	h.adapters[domain.CapabilityDocumentReview].result = domain.ProviderResult{}

	_, err := h.generate(t, "premium-user", domain.CapabilityDocumentReview)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError for short document, got %v", err)
	}
	if got := h.resolver.usageOf("premium-user"); got != 0 {
		t.Fatalf("short document must not charge quota, got %d", got)
	}
}

func TestRoundTripTypeAndContent(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["premium-user"] = domain.TierPremium
	for capability, fake := range h.adapters {
		creation, err := h.generate(t, "premium-user", capability)
		if err != nil {
			t.Fatalf("%s: %v", capability, err)
		}
		if creation.Type != capability {
			t.Fatalf("record type %q does not match capability %q", creation.Type, capability)
		}
		if creation.Content != fake.result.Content {
			t.Fatalf("returned content %q does not match adapter result %q", creation.Content, fake.result.Content)
		}
	}
	records, _ := h.ledger.ListCreationsByUser("premium-user", 100)
	if len(records) != len(h.adapters) {
		t.Fatalf("expected %d ledger records, got %d", len(h.adapters), len(records))
	}
	for _, record := range records {
		if record.Content == "" {
			t.Fatalf("ledger record %s has empty content", record.ID)
		}
	}
}

func TestFreeBoundaryScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.usage["edge-user"] = defaultFreeLimit - 1

	creation, err := h.generate(t, "edge-user", domain.CapabilityTextCompletion)
	if err != nil {
		t.Fatalf("request at usage 9 should be admitted: %v", err)
	}
	if creation.Content != "generated text" {
		t.Fatalf("unexpected content %q", creation.Content)
	}
	if got := h.resolver.usageOf("edge-user"); got != defaultFreeLimit {
		t.Fatalf("expected usage %d after success, got %d", defaultFreeLimit, got)
	}

	_, err = h.generate(t, "edge-user", domain.CapabilityTextCompletion)
	if !errors.Is(err, ErrLimitReached) {
		t.Fatalf("expected ErrLimitReached at the boundary, got %v", err)
	}
	if got := h.resolver.usageOf("edge-user"); got != defaultFreeLimit {
		t.Fatalf("usage must stay %d after rejection, got %d", defaultFreeLimit, got)
	}
}

func TestPersistenceFailureEnqueuesOrphan(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Ledger = failingLedger{}
	})
	h.resolver.plans["premium-user"] = domain.TierPremium

	_, err := h.generate(t, "premium-user", domain.CapabilityImageSynthesis)
	var persistErr *PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	keys := h.orphans.enqueued()
	if len(keys) != 1 || keys[0] != "generated/a.png" {
		t.Fatalf("expected orphaned key enqueued, got %v", keys)
	}
	if got := h.resolver.usageOf("premium-user"); got != 0 {
		t.Fatalf("persistence failure must not charge quota, got %d", got)
	}
}

func TestCancelledRequestPersistsNothing(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	h.adapters[domain.CapabilityTextCompletion].invoke = func(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
		cancel() // client disconnects while the provider call is in flight
		return domain.ProviderResult{Content: "late result", StorageKey: "generated/late.png"}, nil
	}
	snapshot, _ := h.resolver.Resolve(context.Background(), "free-user")
	_, err := h.app.Generate(ctx, snapshot, validRequest("free-user", domain.CapabilityTextCompletion))
	if err == nil {
		t.Fatalf("cancelled request must fail")
	}
	if got := h.resolver.usageOf("free-user"); got != 0 {
		t.Fatalf("cancelled request must not charge quota, got %d", got)
	}
	records, _ := h.ledger.ListCreationsByUser("free-user", 100)
	if len(records) != 0 {
		t.Fatalf("cancelled request must not be recorded, got %d", len(records))
	}
	keys := h.orphans.enqueued()
	if len(keys) != 1 || keys[0] != "generated/late.png" {
		t.Fatalf("late artifact should be reclaimed, got %v", keys)
	}
}

func TestIncrementFailureDoesNotFailGeneration(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.incrementErr = errors.New("redis down")

	creation, err := h.generate(t, "free-user", domain.CapabilityTextCompletion)
	if err != nil {
		t.Fatalf("generation should survive an increment failure: %v", err)
	}
	records, _ := h.ledger.ListCreationsByUser("free-user", 100)
	if len(records) != 1 || records[0].ID != creation.ID {
		t.Fatalf("record should be durable, got %v", records)
	}
}

func TestPublishFlagOnlyAppliesToImageSynthesis(t *testing.T) {
	h := newHarness(t, nil)
	h.resolver.plans["premium-user"] = domain.TierPremium

	req := validRequest("premium-user", domain.CapabilityImageSynthesis)
	req.Publish = true
	snapshot, _ := h.resolver.Resolve(context.Background(), "premium-user")
	creation, err := h.app.Generate(context.Background(), snapshot, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !creation.Publish {
		t.Fatalf("published image synthesis should keep the flag")
	}

	req = validRequest("premium-user", domain.CapabilityBackgroundRemoval)
	req.Publish = true
	creation, err = h.app.Generate(context.Background(), snapshot, req)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if creation.Publish {
		t.Fatalf("publish flag must not apply to %s", creation.Type)
	}
}

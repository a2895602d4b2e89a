// Package app is the mediation core. For every generation request it
// validates input, decides admission against the caller's entitlement
// snapshot, invokes the matching provider adapter exactly once, records the
// result in the append-only ledger, and only then charges free-tier quota.
// The ordering invariant is strict: adapter success, then durable append,
// then increment; any failure stops the chain.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"craftai/internal/adapters"
	"craftai/internal/util"
	"craftai/pkg/domain"
	"craftai/pkg/entitlement"
	"craftai/pkg/store"
)

const (
	defaultFreeLimit      = 10
	defaultAdapterTimeout = 90 * time.Second
	defaultMaxConcurrent  = 8
	commitTimeout         = 15 * time.Second

	// maxDocumentBytes caps document uploads before any extraction work.
	maxDocumentBytes = 5 << 20
)

// Adapter is the uniform provider contract the core dispatches on.
type Adapter interface {
	Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error)
}

// OrphanSink collects storage keys whose artifacts exist but were never
// recorded in the ledger.
type OrphanSink interface {
	Enqueue(ctx context.Context, storageKey string) error
}

// Config wires the core's collaborators.
type Config struct {
	Resolver entitlement.Resolver
	Ledger   store.Ledger
	Adapters map[domain.Capability]Adapter
	Orphans  OrphanSink

	FreeLimit      int
	AdapterTimeout time.Duration
	MaxConcurrent  int64
}

// App orchestrates the per-request generation state machine.
type App struct {
	resolver entitlement.Resolver
	ledger   store.Ledger
	adapters map[domain.Capability]Adapter
	orphans  OrphanSink

	freeLimit      int
	adapterTimeout time.Duration
	sem            *semaphore.Weighted
}

// New validates the wiring and applies defaults.
func New(cfg Config) (*App, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("entitlement resolver required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if len(cfg.Adapters) == 0 {
		return nil, fmt.Errorf("at least one provider adapter required")
	}
	freeLimit := cfg.FreeLimit
	if freeLimit <= 0 {
		freeLimit = defaultFreeLimit
	}
	adapterTimeout := cfg.AdapterTimeout
	if adapterTimeout <= 0 {
		adapterTimeout = defaultAdapterTimeout
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &App{
		resolver:       cfg.Resolver,
		ledger:         cfg.Ledger,
		adapters:       cfg.Adapters,
		orphans:        cfg.Orphans,
		freeLimit:      freeLimit,
		adapterTimeout: adapterTimeout,
		sem:            semaphore.NewWeighted(maxConcurrent),
	}, nil
}

// FreeLimit returns the configured free-tier quota.
func (a *App) FreeLimit() int { return a.freeLimit }

// Generate runs one request through the state machine and returns the ledger
// record on success. The snapshot must have been resolved immediately before
// this call; the core never caches entitlement state across requests.
func (a *App) Generate(ctx context.Context, snapshot domain.EntitlementSnapshot, req domain.GenerationRequest) (domain.Creation, error) {
	logger := util.LoggerFromContext(ctx)

	if err := validate(req); err != nil {
		return domain.Creation{}, err
	}
	adapter, ok := a.adapters[req.Capability]
	if !ok {
		return domain.Creation{}, &ValidationError{Reason: fmt.Sprintf("unsupported capability %q", req.Capability)}
	}
	if err := admit(snapshot, req.Capability, a.freeLimit); err != nil {
		return domain.Creation{}, err
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return domain.Creation{}, fmt.Errorf("acquire generation slot: %w", err)
	}
	defer a.sem.Release(1)

	invokeCtx, cancel := context.WithTimeout(ctx, a.adapterTimeout)
	result, err := adapter.Invoke(invokeCtx, req)
	cancel()
	if err != nil {
		if errors.Is(err, adapters.ErrDocumentTooShort) {
			return domain.Creation{}, &ValidationError{Reason: err.Error()}
		}
		return domain.Creation{}, &AdapterError{
			Capability: req.Capability,
			Timeout:    errors.Is(err, context.DeadlineExceeded),
			Err:        err,
		}
	}

	// The caller may have disconnected while the adapter ran. Discard the
	// result: a cancelled request must never persist a record or charge
	// quota.
	if ctx.Err() != nil {
		a.reclaim(result, logger)
		return domain.Creation{}, fmt.Errorf("request cancelled after provider call: %w", ctx.Err())
	}

	// From here the core commits: append then increment must not be split
	// by a late client disconnect.
	commitCtx, cancelCommit := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancelCommit()

	creation := domain.Creation{
		ID:        util.NewID(),
		UserID:    req.UserID,
		Prompt:    ledgerPrompt(req),
		Content:   result.Content,
		Type:      req.Capability,
		Publish:   req.Publish && req.Capability == domain.CapabilityImageSynthesis,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.ledger.AppendCreation(creation); err != nil {
		a.reclaim(result, logger)
		return domain.Creation{}, &PersistenceError{Err: err}
	}

	if snapshot.Plan == domain.TierFree {
		if err := a.resolver.IncrementFreeUsage(commitCtx, req.UserID); err != nil {
			// The record is durable; failing the request now would let the
			// user retry a generation they already received. Under-charging
			// is the safe direction.
			logger.Error("free usage increment failed after durable append",
				"user_id", req.UserID, "creation_id", creation.ID, "err", err)
		}
	}
	return creation, nil
}

// ListCreations returns the user's generation history, newest first.
func (a *App) ListCreations(userID string, limit int) ([]domain.Creation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &ValidationError{Reason: "user id is required"}
	}
	return a.ledger.ListCreationsByUser(userID, limit)
}

// ListPublished returns the community feed of published creations.
func (a *App) ListPublished(limit int) ([]domain.Creation, error) {
	return a.ledger.ListPublished(limit)
}

// reclaim routes an already-stored artifact to the orphan queue when its
// ledger record will never exist.
func (a *App) reclaim(result domain.ProviderResult, logger *slog.Logger) {
	if result.StorageKey == "" || a.orphans == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := a.orphans.Enqueue(ctx, result.StorageKey); err != nil {
		logger.Warn("failed to enqueue orphaned artifact", "storage_key", result.StorageKey, "err", err)
	}
}

func validate(req domain.GenerationRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return &ValidationError{Reason: "user id is required"}
	}
	switch req.Capability {
	case domain.CapabilityTextCompletion, domain.CapabilityImageSynthesis:
		if strings.TrimSpace(req.Prompt) == "" {
			return &ValidationError{Reason: "prompt is required"}
		}
	case domain.CapabilityBackgroundRemoval:
		if req.FilePath == "" {
			return &ValidationError{Reason: "no image uploaded"}
		}
	case domain.CapabilityObjectRemoval:
		if req.FilePath == "" {
			return &ValidationError{Reason: "no image uploaded"}
		}
		if len(strings.Fields(req.ObjectName)) != 1 {
			return &ValidationError{Reason: "object name must be a single word"}
		}
	case domain.CapabilityDocumentReview:
		if req.FilePath == "" {
			return &ValidationError{Reason: "no document uploaded"}
		}
		if req.FileSize > maxDocumentBytes {
			return &ValidationError{Reason: "document file exceeds the 5 MB limit"}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("unsupported capability %q", req.Capability)}
	}
	return nil
}

// ledgerPrompt is the prompt-or-description column of the record. Binary
// capabilities have no user prompt, so a fixed description is stored.
func ledgerPrompt(req domain.GenerationRequest) string {
	switch req.Capability {
	case domain.CapabilityBackgroundRemoval:
		return "Remove background from image"
	case domain.CapabilityObjectRemoval:
		return fmt.Sprintf("Removed %s from image", strings.TrimSpace(req.ObjectName))
	case domain.CapabilityDocumentReview:
		return "Document review"
	default:
		return req.Prompt
	}
}

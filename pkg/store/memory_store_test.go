package store

import (
	"testing"
	"time"

	"craftai/pkg/domain"
)

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		err := s.AppendCreation(domain.Creation{
			ID:        id,
			UserID:    "user-1",
			Prompt:    "p",
			Content:   "c",
			Type:      domain.CapabilityTextCompletion,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	items, err := s.ListCreationsByUser("user-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != "c" || items[2].ID != "a" {
		t.Fatalf("expected newest first, got %v", []string{items[0].ID, items[1].ID, items[2].ID})
	}
}

func TestMemoryStoreListPublishedFilters(t *testing.T) {
	s := NewMemoryStore()
	_ = s.AppendCreation(domain.Creation{ID: "pub", UserID: "u", Publish: true, Type: domain.CapabilityImageSynthesis, CreatedAt: time.Now()})
	_ = s.AppendCreation(domain.Creation{ID: "priv", UserID: "u", Publish: false, Type: domain.CapabilityImageSynthesis, CreatedAt: time.Now()})
	items, err := s.ListPublished(10)
	if err != nil {
		t.Fatalf("list published: %v", err)
	}
	if len(items) != 1 || items[0].ID != "pub" {
		t.Fatalf("expected only the published creation, got %v", items)
	}
}

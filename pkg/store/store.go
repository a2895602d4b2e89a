package store

import "craftai/pkg/domain"

// Ledger is the append-only record of generations. AppendCreation is the only
// hot-path write; records are never updated or deleted.
type Ledger interface {
	AppendCreation(creation domain.Creation) error
	ListCreationsByUser(userID string, limit int) ([]domain.Creation, error)
	ListPublished(limit int) ([]domain.Creation, error)
}

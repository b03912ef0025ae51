package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkin-system/models"

	"github.com/pocketbase/pocketbase/core"
)

// ScannerStore resolves scanner identities from the users auth
// collection.
type ScannerStore struct {
	app core.App
}

func NewScannerStore(app core.App) *ScannerStore {
	return &ScannerStore{app: app}
}

// GetScanner returns the scanner with the given id, or nil when no
// such user exists.
func (s *ScannerStore) GetScanner(ctx context.Context, id string) (*models.Scanner, error) {
	if id == "" {
		return nil, nil
	}

	record, err := s.app.FindRecordById(CollectionScanners, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanner lookup: %w", err)
	}

	return &models.Scanner{
		ID:   record.Id,
		Name: record.GetString("name"),
		Role: record.GetString("role"),
	}, nil
}

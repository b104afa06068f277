package ports

import (
	"context"
	"errors"
)

var ErrRecordNotFound = errors.New("license record not found")

// LicenseRecord is a stored regulator record. EventDate is kept as the raw
// YYYY-MM-DD text it was published with.
type LicenseRecord struct {
	ID              uint64
	Kind            string
	LicenseNumber   string
	ApplicationType string
	EventDate       string
	BusinessName    string
	LicenseType     string
	CreatedAt       string
}

// RecordSelector restricts a query to one record kind and, when Categories
// is non-empty, to those application types.
type RecordSelector struct {
	Kind       string
	Categories []string
}

// GroupRef is one distinct (license number, kind, application type) present
// in the store.
type GroupRef struct {
	LicenseNumber   string
	Kind            string
	ApplicationType string
}

type RecordReadRepository interface {
	GetRecord(ctx context.Context, id uint64) (LicenseRecord, error)
	ListRecordsByID(ctx context.Context, ids []uint64) ([]LicenseRecord, error)
	// ListGroup returns every record of one license number matching any of
	// the selectors, ordered by event date then id.
	ListGroup(ctx context.Context, licenseNumber string, selectors []RecordSelector) ([]LicenseRecord, error)
	ListGroupKeys(ctx context.Context, selectors []RecordSelector) ([]GroupRef, error)
	// ListRecords is a full scan over the selectors, ordered by license
	// number, event date and id.
	ListRecords(ctx context.Context, selectors []RecordSelector) ([]LicenseRecord, error)
}

type RecordRepository interface {
	RecordReadRepository
	// InsertRecord stores a record unless one with the same kind, event date,
	// license number and application type exists. It returns the stored id
	// and whether a new row was written.
	InsertRecord(ctx context.Context, record LicenseRecord) (uint64, bool, error)
}

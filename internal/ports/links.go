package ports

import (
	"context"
	"errors"
)

var ErrLinkNotFound = errors.New("record link not found")

type RecordLink struct {
	NotificationID uint64
	OutcomeID      uint64
	Confidence     string
	DaysGap        int
	CreatedAt      string
}

// LinkView is a link joined with the outcome record it points at.
type LinkView struct {
	RecordLink
	OutcomeKind string
	OutcomeDate string
}

// ReverseLinkView is a link seen from the outcome side.
type ReverseLinkView struct {
	RecordLink
	NotificationDate     string
	NotificationCategory string
	BusinessName         string
}

type LinkReadRepository interface {
	// GetLink returns the preferred link of a notification: high before
	// medium before low, then the smallest outcome id.
	GetLink(ctx context.Context, notificationID uint64) (LinkView, error)
	GetLinks(ctx context.Context, notificationIDs []uint64) (map[uint64]LinkView, error)
	GetReverseLink(ctx context.Context, outcomeID uint64) (ReverseLinkView, error)
	ListLinks(ctx context.Context) ([]RecordLink, error)
	ListLinksForRecords(ctx context.Context, notificationIDs []uint64, outcomeIDs []uint64) ([]RecordLink, error)
	CountByConfidence(ctx context.Context) (map[string]int64, error)
	// ListDanglingLinks returns links whose notification or outcome row is gone.
	ListDanglingLinks(ctx context.Context) ([]RecordLink, error)
}

type LinkRepository interface {
	LinkReadRepository
	// ReplaceAll clears the table and writes links.
	ReplaceAll(ctx context.Context, links []RecordLink) error
	// ReplaceForRecords deletes every link touching the given notifications
	// or outcomes and writes links in their place.
	ReplaceForRecords(ctx context.Context, notificationIDs []uint64, outcomeIDs []uint64, links []RecordLink) error
}

package ports

import "context"

// RecordEventPublisher announces newly stored records so that linking can
// happen off the ingestion path.
type RecordEventPublisher interface {
	PublishRecordInserted(ctx context.Context, recordID uint64) error
}

package repository

import (
	"context"
	"errors"
	"sort"

	"gorm.io/gorm"

	"licenselink/internal/infrastructure/persistence/sqlite/model"
	"licenselink/internal/ports"
)

// confidenceRank orders high before medium before low.
const confidenceRank = "CASE rl.confidence WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END"

const linkColumns = "rl.notification_id, rl.outcome_id, rl.confidence, rl.days_gap, rl.created_at"

type LinkRepository struct {
	db *gorm.DB
}

var _ ports.LinkRepository = (*LinkRepository)(nil)

func NewLinkRepository(db *gorm.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

type linkViewRow struct {
	NotificationID uint64
	OutcomeID      uint64
	Confidence     string
	DaysGap        int
	CreatedAt      string
	OutcomeKind    string
	OutcomeDate    string
}

func (row linkViewRow) toPort() ports.LinkView {
	return ports.LinkView{
		RecordLink: ports.RecordLink{
			NotificationID: row.NotificationID,
			OutcomeID:      row.OutcomeID,
			Confidence:     row.Confidence,
			DaysGap:        row.DaysGap,
			CreatedAt:      row.CreatedAt,
		},
		OutcomeKind: row.OutcomeKind,
		OutcomeDate: row.OutcomeDate,
	}
}

func outcomeJoin(db *gorm.DB) *gorm.DB {
	return db.Table("record_links AS rl").
		Select(linkColumns+", o.kind AS outcome_kind, o.event_date AS outcome_date").
		Joins("JOIN license_records o ON o.id = rl.outcome_id")
}

func (r *LinkRepository) GetLink(ctx context.Context, notificationID uint64) (ports.LinkView, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.LinkView{}, err
	}

	var rows []linkViewRow
	if err := outcomeJoin(db).
		Where("rl.notification_id = ?", notificationID).
		Order(confidenceRank).
		Order("rl.outcome_id asc").
		Limit(1).
		Scan(&rows).Error; err != nil {
		return ports.LinkView{}, err
	}
	if len(rows) == 0 {
		return ports.LinkView{}, ports.ErrLinkNotFound
	}
	return rows[0].toPort(), nil
}

func (r *LinkRepository) GetLinks(ctx context.Context, notificationIDs []uint64) (map[uint64]ports.LinkView, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]ports.LinkView, len(notificationIDs))
	for _, chunk := range chunkIDs(notificationIDs, maxIDsPerQuery) {
		var rows []linkViewRow
		if err := outcomeJoin(db).
			Where("rl.notification_id IN ?", chunk).
			Order("rl.notification_id asc").
			Order(confidenceRank).
			Order("rl.outcome_id asc").
			Scan(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			if _, seen := out[row.NotificationID]; seen {
				continue
			}
			out[row.NotificationID] = row.toPort()
		}
	}
	return out, nil
}

type reverseLinkRow struct {
	NotificationID       uint64
	OutcomeID            uint64
	Confidence           string
	DaysGap              int
	CreatedAt            string
	NotificationDate     string
	NotificationCategory string
	BusinessName         string
}

func (r *LinkRepository) GetReverseLink(ctx context.Context, outcomeID uint64) (ports.ReverseLinkView, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.ReverseLinkView{}, err
	}

	var rows []reverseLinkRow
	if err := db.Table("record_links AS rl").
		Select(linkColumns+", n.event_date AS notification_date, n.application_type AS notification_category, n.business_name AS business_name").
		Joins("JOIN license_records n ON n.id = rl.notification_id").
		Where("rl.outcome_id = ?", outcomeID).
		Order(confidenceRank).
		Order("rl.notification_id asc").
		Limit(1).
		Scan(&rows).Error; err != nil {
		return ports.ReverseLinkView{}, err
	}
	if len(rows) == 0 {
		return ports.ReverseLinkView{}, ports.ErrLinkNotFound
	}

	row := rows[0]
	return ports.ReverseLinkView{
		RecordLink: ports.RecordLink{
			NotificationID: row.NotificationID,
			OutcomeID:      row.OutcomeID,
			Confidence:     row.Confidence,
			DaysGap:        row.DaysGap,
			CreatedAt:      row.CreatedAt,
		},
		NotificationDate:     row.NotificationDate,
		NotificationCategory: row.NotificationCategory,
		BusinessName:         row.BusinessName,
	}, nil
}

func (r *LinkRepository) ListLinks(ctx context.Context) ([]ports.RecordLink, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.RecordLink
	if err := db.Order("notification_id asc").Order("outcome_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPortLinks(rows), nil
}

func (r *LinkRepository) ListLinksForRecords(ctx context.Context, notificationIDs []uint64, outcomeIDs []uint64) ([]ports.RecordLink, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	type pair struct{ n, o uint64 }
	seen := make(map[pair]struct{})
	var out []ports.RecordLink
	collect := func(column string, ids []uint64) error {
		for _, chunk := range chunkIDs(ids, maxIDsPerQuery) {
			var rows []model.RecordLink
			if err := db.Where(column+" IN ?", chunk).Find(&rows).Error; err != nil {
				return err
			}
			for _, row := range rows {
				key := pair{row.NotificationID, row.OutcomeID}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, toPortLink(row))
			}
		}
		return nil
	}
	if err := collect("notification_id", notificationIDs); err != nil {
		return nil, err
	}
	if err := collect("outcome_id", outcomeIDs); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].NotificationID != out[j].NotificationID {
			return out[i].NotificationID < out[j].NotificationID
		}
		return out[i].OutcomeID < out[j].OutcomeID
	})
	return out, nil
}

func (r *LinkRepository) CountByConfidence(ctx context.Context) (map[string]int64, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Confidence string
		Total      int64
	}
	if err := db.Model(&model.RecordLink{}).
		Select("confidence, COUNT(*) AS total").
		Group("confidence").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Confidence] = row.Total
	}
	return out, nil
}

func (r *LinkRepository) ListDanglingLinks(ctx context.Context) ([]ports.RecordLink, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	var rows []model.RecordLink
	if err := db.Table("record_links AS rl").
		Select(linkColumns).
		Joins("LEFT JOIN license_records n ON n.id = rl.notification_id").
		Joins("LEFT JOIN license_records o ON o.id = rl.outcome_id").
		Where("n.id IS NULL OR o.id IS NULL").
		Order("rl.notification_id asc").
		Order("rl.outcome_id asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toPortLinks(rows), nil
}

func (r *LinkRepository) ReplaceAll(ctx context.Context, links []ports.RecordLink) error {
	return inTransaction(ctx, r.db, func(ctx context.Context) error {
		db, err := dbFromContext(ctx, r.db)
		if err != nil {
			return err
		}
		if err := db.Where("1 = 1").Delete(&model.RecordLink{}).Error; err != nil {
			return err
		}
		return insertLinks(db, links)
	})
}

func (r *LinkRepository) ReplaceForRecords(ctx context.Context, notificationIDs []uint64, outcomeIDs []uint64, links []ports.RecordLink) error {
	return inTransaction(ctx, r.db, func(ctx context.Context) error {
		db, err := dbFromContext(ctx, r.db)
		if err != nil {
			return err
		}
		for _, chunk := range chunkIDs(notificationIDs, maxIDsPerQuery) {
			if err := db.Where("notification_id IN ?", chunk).Delete(&model.RecordLink{}).Error; err != nil {
				return err
			}
		}
		for _, chunk := range chunkIDs(outcomeIDs, maxIDsPerQuery) {
			if err := db.Where("outcome_id IN ?", chunk).Delete(&model.RecordLink{}).Error; err != nil {
				return err
			}
		}
		return insertLinks(db, links)
	})
}

func insertLinks(db *gorm.DB, links []ports.RecordLink) error {
	if len(links) == 0 {
		return nil
	}

	rows := make([]model.RecordLink, 0, len(links))
	for _, link := range links {
		if link.NotificationID == 0 || link.OutcomeID == 0 {
			return errors.New("link requires notification and outcome ids")
		}
		rows = append(rows, model.RecordLink{
			NotificationID: link.NotificationID,
			OutcomeID:      link.OutcomeID,
			Confidence:     link.Confidence,
			DaysGap:        link.DaysGap,
			CreatedAt:      link.CreatedAt,
		})
	}
	return db.CreateInBatches(rows, insertBatchSize).Error
}

func toPortLinks(rows []model.RecordLink) []ports.RecordLink {
	out := make([]ports.RecordLink, 0, len(rows))
	for _, row := range rows {
		out = append(out, toPortLink(row))
	}
	return out
}

func toPortLink(row model.RecordLink) ports.RecordLink {
	return ports.RecordLink{
		NotificationID: row.NotificationID,
		OutcomeID:      row.OutcomeID,
		Confidence:     row.Confidence,
		DaysGap:        row.DaysGap,
		CreatedAt:      row.CreatedAt,
	}
}

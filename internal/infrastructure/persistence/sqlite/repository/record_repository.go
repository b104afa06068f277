package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"licenselink/internal/infrastructure/persistence/sqlite/model"
	"licenselink/internal/ports"
)

type RecordRepository struct {
	db *gorm.DB
}

var _ ports.RecordRepository = (*RecordRepository)(nil)

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) GetRecord(ctx context.Context, id uint64) (ports.LicenseRecord, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return ports.LicenseRecord{}, err
	}

	var row model.LicenseRecord
	if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.LicenseRecord{}, ports.ErrRecordNotFound
		}
		return ports.LicenseRecord{}, err
	}
	return toPortRecord(row), nil
}

func (r *RecordRepository) ListRecordsByID(ctx context.Context, ids []uint64) ([]ports.LicenseRecord, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	out := make([]ports.LicenseRecord, 0, len(ids))
	for _, chunk := range chunkIDs(ids, maxIDsPerQuery) {
		var rows []model.LicenseRecord
		if err := db.Where("id IN ?", chunk).Order("id asc").Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, row := range rows {
			out = append(out, toPortRecord(row))
		}
	}
	return out, nil
}

func (r *RecordRepository) ListGroup(ctx context.Context, licenseNumber string, selectors []ports.RecordSelector) ([]ports.LicenseRecord, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	cond, args := selectorCondition(selectors)
	var rows []model.LicenseRecord
	if err := db.
		Where("license_number = ?", licenseNumber).
		Where(cond, args...).
		Order("event_date asc").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPortRecords(rows), nil
}

type groupRefRow struct {
	LicenseNumber   string
	Kind            string
	ApplicationType string
}

func (r *RecordRepository) ListGroupKeys(ctx context.Context, selectors []ports.RecordSelector) ([]ports.GroupRef, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	cond, args := selectorCondition(selectors)
	var rows []groupRefRow
	if err := db.Model(&model.LicenseRecord{}).
		Distinct("license_number", "kind", "application_type").
		Where(cond, args...).
		Where("license_number <> ''").
		Order("license_number asc").
		Order("kind asc").
		Order("application_type asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]ports.GroupRef, 0, len(rows))
	for _, row := range rows {
		out = append(out, ports.GroupRef{
			LicenseNumber:   row.LicenseNumber,
			Kind:            row.Kind,
			ApplicationType: row.ApplicationType,
		})
	}
	return out, nil
}

func (r *RecordRepository) ListRecords(ctx context.Context, selectors []ports.RecordSelector) ([]ports.LicenseRecord, error) {
	if len(selectors) == 0 {
		return nil, nil
	}
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return nil, err
	}

	cond, args := selectorCondition(selectors)
	var rows []model.LicenseRecord
	if err := db.
		Where(cond, args...).
		Order("license_number asc").
		Order("event_date asc").
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toPortRecords(rows), nil
}

func (r *RecordRepository) InsertRecord(ctx context.Context, record ports.LicenseRecord) (uint64, bool, error) {
	db, err := dbFromContext(ctx, r.db)
	if err != nil {
		return 0, false, err
	}

	row := model.LicenseRecord{
		Kind:            strings.TrimSpace(record.Kind),
		EventDate:       strings.TrimSpace(record.EventDate),
		LicenseNumber:   strings.TrimSpace(record.LicenseNumber),
		ApplicationType: strings.TrimSpace(record.ApplicationType),
		BusinessName:    record.BusinessName,
		LicenseType:     record.LicenseType,
		CreatedAt:       record.CreatedAt,
	}

	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "kind"},
			{Name: "event_date"},
			{Name: "license_number"},
			{Name: "application_type"},
		},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return 0, false, result.Error
	}
	if result.RowsAffected > 0 && row.ID != 0 {
		return row.ID, true, nil
	}

	var existing model.LicenseRecord
	if err := db.
		Where("kind = ? AND event_date = ? AND license_number = ? AND application_type = ?",
			row.Kind, row.EventDate, row.LicenseNumber, row.ApplicationType).
		Take(&existing).Error; err != nil {
		return 0, false, err
	}
	return existing.ID, false, nil
}

func toPortRecords(rows []model.LicenseRecord) []ports.LicenseRecord {
	out := make([]ports.LicenseRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, toPortRecord(row))
	}
	return out
}

func toPortRecord(row model.LicenseRecord) ports.LicenseRecord {
	return ports.LicenseRecord{
		ID:              row.ID,
		Kind:            row.Kind,
		LicenseNumber:   row.LicenseNumber,
		ApplicationType: row.ApplicationType,
		EventDate:       row.EventDate,
		BusinessName:    row.BusinessName,
		LicenseType:     row.LicenseType,
		CreatedAt:       row.CreatedAt,
	}
}

package model

type RecordLink struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	NotificationID uint64 `gorm:"column:notification_id;not null;uniqueIndex:idx_record_links_pair,priority:1"`
	OutcomeID      uint64 `gorm:"column:outcome_id;not null;uniqueIndex:idx_record_links_pair,priority:2;index:idx_record_links_outcome"`
	Confidence     string `gorm:"column:confidence;type:text;not null;check:chk_record_links_confidence,confidence IN ('high','medium','low')"`
	DaysGap        int    `gorm:"column:days_gap;not null"`
	CreatedAt      string `gorm:"column:created_at;type:text;not null"`
}

func (RecordLink) TableName() string {
	return "record_links"
}

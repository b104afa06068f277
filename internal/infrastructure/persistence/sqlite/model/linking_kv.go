package model

type LinkingKV struct {
	Key       string  `gorm:"column:key;type:text;primaryKey"`
	Value     string  `gorm:"column:value;type:text;not null"`
	UpdatedAt string  `gorm:"column:updated_at;type:text;not null"`
	ExpiresAt *string `gorm:"column:expires_at;type:text"`
}

func (LinkingKV) TableName() string {
	return "linking_kv"
}

// All lists every table managed by AutoMigrate.
func All() []any {
	return []any{
		&LicenseRecord{},
		&RecordLink{},
		&LinkingKV{},
	}
}

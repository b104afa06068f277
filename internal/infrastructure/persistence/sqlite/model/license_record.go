package model

type LicenseRecord struct {
	ID              uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	Kind            string `gorm:"column:kind;type:text;not null;uniqueIndex:idx_license_records_natural,priority:1"`
	EventDate       string `gorm:"column:event_date;type:text;not null;uniqueIndex:idx_license_records_natural,priority:2"`
	LicenseNumber   string `gorm:"column:license_number;type:text;not null;uniqueIndex:idx_license_records_natural,priority:3;index:idx_license_records_group,priority:1"`
	ApplicationType string `gorm:"column:application_type;type:text;not null;uniqueIndex:idx_license_records_natural,priority:4;index:idx_license_records_group,priority:2"`
	BusinessName    string `gorm:"column:business_name;type:text;not null;default:''"`
	LicenseType     string `gorm:"column:license_type;type:text;not null;default:''"`
	CreatedAt       string `gorm:"column:created_at;type:text;not null"`
}

func (LicenseRecord) TableName() string {
	return "license_records"
}

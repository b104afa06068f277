package intake

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"licenselink/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "licenselink/internal/infrastructure/persistence/sqlite/repository"
)

type fakeLinker struct {
	linked []uint64
	failOn map[uint64]bool
}

func (l *fakeLinker) LinkOne(_ context.Context, recordID uint64) error {
	if l.failOn[recordID] {
		return errors.New("database is locked")
	}
	l.linked = append(l.linked, recordID)
	return nil
}

type fakePublisher struct {
	published []uint64
}

func (p *fakePublisher) PublishRecordInserted(_ context.Context, recordID uint64) error {
	p.published = append(p.published, recordID)
	return nil
}

func setupRecords(t *testing.T) *sqliterepo.RecordRepository {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "intake.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return sqliterepo.NewRecordRepository(db)
}

const fixture = `
records:
  - kind: notification
    license_number: "078001"
    application_type: RENEWAL
    event_date: 2025-06-01
    business_name: Corner Market
  - kind: Outcome_Approved
    license_number: "078001"
    application_type: RENEWAL
    event_date: 2025-05-30
  - kind: notification
    license_number: "078001"
    application_type: RENEWAL
    event_date: 2025-06-01
  - kind: withdrawn
    license_number: "078002"
    application_type: RENEWAL
    event_date: 2025-06-01
  - kind: notification
    license_number: "078003"
    application_type: RENEWAL
    event_date: June 1st
`

func TestParseFixture(t *testing.T) {
	records, err := ParseFixture(strings.NewReader(fixture))
	if err != nil {
		t.Fatalf("ParseFixture() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("ParseFixture() len = %d", len(records))
	}
	if records[0].EventDate != "2025-06-01" || records[0].LicenseNumber != "078001" {
		t.Fatalf("ParseFixture()[0] = %+v", records[0])
	}

	if _, err := ParseFixture(strings.NewReader("records:\n  - colour: red\n")); err == nil {
		t.Fatalf("ParseFixture() with unknown field error = nil")
	}
	if records, err := ParseFixture(strings.NewReader("")); err != nil || len(records) != 0 {
		t.Fatalf("ParseFixture(empty) = %v, %v", records, err)
	}
}

func TestLoadFileLinksNewRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	linker := &fakeLinker{}
	svc := NewService(setupRecords(t), linker, nil)

	result, err := svc.LoadFile(context.Background(), path, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if result.Read != 5 || result.Inserted != 2 || result.Duplicates != 1 || result.Invalid != 2 || result.Linked != 2 {
		t.Fatalf("LoadFile() result = %+v", result)
	}
	if len(linker.linked) != 2 {
		t.Fatalf("linked = %v", linker.linked)
	}

	again, err := svc.LoadFile(context.Background(), path, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadFile() second run error = %v", err)
	}
	if again.Inserted != 0 || again.Duplicates != 3 || again.Linked != 0 {
		t.Fatalf("LoadFile() second run = %+v", again)
	}
}

func TestLoadIsolatesLinkFailures(t *testing.T) {
	records := setupRecords(t)
	linker := &fakeLinker{failOn: map[uint64]bool{1: true}}
	svc := NewService(records, linker, nil)

	result, err := svc.Load(context.Background(), []FixtureRecord{
		{Kind: "notification", LicenseNumber: "A", ApplicationType: "RENEWAL", EventDate: "2025-06-01"},
		{Kind: "notification", LicenseNumber: "B", ApplicationType: "RENEWAL", EventDate: "2025-06-01"},
	}, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Inserted != 2 || result.Linked != 1 || len(result.Failures) != 1 {
		t.Fatalf("Load() result = %+v", result)
	}
	if result.Failures[0].RecordID != 1 || result.Failures[0].Index != 0 {
		t.Fatalf("Load() failure = %+v", result.Failures[0])
	}
}

func TestLoadPublishesInsteadOfLinking(t *testing.T) {
	linker := &fakeLinker{}
	publisher := &fakePublisher{}
	svc := NewService(setupRecords(t), linker, publisher)

	result, err := svc.Load(context.Background(), []FixtureRecord{
		{Kind: "outcome_discontinued", LicenseNumber: "A", ApplicationType: "DISCONTINUED", EventDate: "2025-06-01"},
	}, LoadOptions{Publish: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if result.Published != 1 || len(publisher.published) != 1 || len(linker.linked) != 0 {
		t.Fatalf("Load() result = %+v published=%v linked=%v", result, publisher.published, linker.linked)
	}

	if _, err := NewService(setupRecords(t), linker, nil).Load(context.Background(), nil, LoadOptions{Publish: true}); err == nil {
		t.Fatalf("Load() publish without bus error = nil")
	}
}

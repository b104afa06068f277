package uow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"licenselink/internal/infrastructure/persistence/sqlite/model"
	"licenselink/internal/ports"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "uow.sqlite")), &gorm.Config{})
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
	return db
}

func insertKV(ctx context.Context, t *testing.T, key string) error {
	t.Helper()

	tx, ok := ports.TxFromContext(ctx).(*gorm.DB)
	if !ok {
		t.Fatalf("ctx carries no gorm tx")
	}
	return tx.Create(&model.LinkingKV{Key: key, Value: "v", UpdatedAt: "t"}).Error
}

func countKV(t *testing.T, db *gorm.DB) int64 {
	t.Helper()

	var n int64
	if err := db.Model(&model.LinkingKV{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := setupDB(t)
	u := NewUnitOfWork(db)
	boom := errors.New("boom")

	err := u.WithTx(context.Background(), func(ctx context.Context) error {
		if err := insertKV(ctx, t, "a"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}
	if n := countKV(t, db); n != 0 {
		t.Fatalf("rows after rollback = %d", n)
	}
}

func TestWithTxJoinsOuterTransaction(t *testing.T) {
	db := setupDB(t)
	u := NewUnitOfWork(db)

	err := u.WithTx(context.Background(), func(outer context.Context) error {
		outerTx := ports.TxFromContext(outer)
		if err := u.WithTx(outer, func(inner context.Context) error {
			if ports.TxFromContext(inner) != outerTx {
				t.Fatalf("inner WithTx opened a new transaction")
			}
			return insertKV(inner, t, "a")
		}); err != nil {
			return err
		}
		return insertKV(outer, t, "b")
	})
	if err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if n := countKV(t, db); n != 2 {
		t.Fatalf("rows after commit = %d", n)
	}
}

func TestWithTxRejectsCanceledContext(t *testing.T) {
	u := NewUnitOfWork(setupDB(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := u.WithTx(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithTx() error = %v, want context.Canceled", err)
	}
	if called {
		t.Fatalf("fn called with canceled context")
	}
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"licenselink/internal/ports"
)

// maxIDsPerQuery keeps IN lists well below SQLite's bound-parameter limit.
const maxIDsPerQuery = 500

// insertBatchSize is the row count per INSERT when writing links.
const insertBatchSize = 500

// dbFromContext joins the transaction carried by ctx, if any.
func dbFromContext(ctx context.Context, db *gorm.DB) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

// inTransaction runs fn in the caller's transaction or opens a new one.
func inTransaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if ports.InTx(ctx) {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}

func chunkIDs(ids []uint64, size int) [][]uint64 {
	if len(ids) == 0 {
		return nil
	}
	chunks := make([][]uint64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// selectorCondition renders selectors as one parenthesised OR condition.
func selectorCondition(selectors []ports.RecordSelector) (string, []any) {
	parts := make([]string, 0, len(selectors))
	args := make([]any, 0, len(selectors)*2)
	for _, s := range selectors {
		if len(s.Categories) == 0 {
			parts = append(parts, "kind = ?")
			args = append(args, s.Kind)
			continue
		}
		parts = append(parts, "(kind = ? AND application_type IN ?)")
		args = append(args, s.Kind, s.Categories)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"gitlab.com/vitalcare/api/wa-inbox-service/internal/apperrors"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/model"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/normalize"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/observer"
	"gitlab.com/vitalcare/api/wa-inbox-service/internal/tenant"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/logger"
	"gitlab.com/vitalcare/api/wa-inbox-service/pkg/utils"
)

// SaveMessageRow stores one message log row. Phone is standardized before
// writing so the IN lookups stay consistent.
func (r *PostgresRepo) SaveMessageRow(ctx context.Context, row model.MessageRow) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if row.CompanyID != "" && row.CompanyID != companyID {
		return fmt.Errorf("%w: row CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, row.CompanyID, companyID)
	}

	row.CompanyID = companyID
	row.Phone = normalize.Standardize(row.Phone)
	row.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&row)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessageRow Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message_row", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save message row after retries",
			zap.String("phone", row.Phone), zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

// BulkUpsertMessageRows inserts rows in one transaction, refreshing existing
// rows on primary-key conflict.
func (r *PostgresRepo) BulkUpsertMessageRows(ctx context.Context, rows []model.MessageRow) error {
	if len(rows) == 0 {
		return nil
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	validRows := make([]model.MessageRow, 0, len(rows))
	for i := range rows {
		if rows[i].CompanyID != "" && rows[i].CompanyID != companyID {
			loggerCtx.Warn("Company ID mismatch for message row, skipping",
				zap.String("phone", rows[i].Phone),
				zap.String("context_company_id", companyID),
				zap.String("row_company_id", rows[i].CompanyID))
			continue
		}
		rows[i].CompanyID = companyID
		rows[i].Phone = normalize.Standardize(rows[i].Phone)
		rows[i].UpdatedAt = utils.Now()
		validRows = append(validRows, rows[i])
	}

	if len(validRows) == 0 {
		loggerCtx.Info("No valid message rows found for bulk upsert after tenant ID filtering")
		return nil
	}

	operation := func() error {
		tx := r.db.WithContext(ctx).Begin()
		if tx.Error != nil {
			return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
		}
		var txErr error
		defer func() {
			if r := recover(); r != nil {
				tx.Rollback()
				panic(r)
			} else if txErr != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					loggerCtx.Error("Failed to rollback transaction after error",
						zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
				}
			}
		}()

		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoUpdates: clause.AssignmentColumns(model.MessageRowUpdatableFields()),
		}).Create(&validRows)

		if result.Error != nil {
			txErr = fmt.Errorf("%w: bulk upsert message rows failed: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		loggerCtx.Info("Bulk upsert message rows successful",
			zap.Int("rows_processed", len(validRows)), zap.Int64("rows_affected", result.RowsAffected))
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkUpsertMessageRows Commit", operation)
	observer.ObserveDbOperationDuration("bulk_upsert", "message_row", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		loggerCtx.Error("Failed to bulk upsert message rows after retries", zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

// FindMessageRowsByPhones returns the log rows for a set of phones, ordered
// newest first. Phones are standardized before the IN filter so callers may
// pass any gateway ID spelling.
func (r *PostgresRepo) FindMessageRowsByPhones(ctx context.Context, phones []string) ([]model.MessageRow, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if len(phones) == 0 {
		return nil, nil
	}
	loggerCtx := logger.FromContext(ctx)

	standardized := make([]string, 0, len(phones))
	for _, phone := range phones {
		if s := normalize.Standardize(phone); s != "" {
			standardized = append(standardized, s)
		}
	}

	var rows []model.MessageRow
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("phone IN ? AND company_id = ?", standardized, companyID).
			Order("message_timestamp DESC").
			Find(&rows)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindMessageRowsByPhones", operation)
	observer.ObserveDbOperationDuration("find_by_phones", "message_row", companyID, time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to find message rows by phones after retries",
			zap.Int("phones", len(standardized)),
			zap.String("company_id", companyID),
			zap.Error(err))
		return nil, err // Already wrapped
	}
	return rows, nil
}

// MarkConversationRead flags every incoming row of one contact as read and
// returns the number of rows updated.
func (r *PostgresRepo) MarkConversationRead(ctx context.Context, phone string) (int64, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	standardized := normalize.Standardize(phone)

	var affected int64
	operation := func() error {
		result := r.db.WithContext(ctx).
			Model(&model.MessageRow{}).
			Where("phone = ? AND company_id = ? AND flow = ? AND read = false",
				standardized, companyID, model.MessageFlowIncoming).
			Updates(map[string]interface{}{"read": true, "updated_at": utils.Now()})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		affected = result.RowsAffected
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "MarkConversationRead Commit", operation)
	observer.ObserveDbOperationDuration("update", "message_row", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to mark conversation read after retries",
			zap.String("phone", standardized), zap.Error(commitErr))
		return 0, commitErr // Already wrapped
	}
	return affected, nil
}

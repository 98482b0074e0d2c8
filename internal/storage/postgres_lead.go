package storage

import (
	"context"
	"errors"
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

// FindAllLeads returns the full lead registry for the tenant. The merge scans
// the whole table, so no filter is applied.
func (r *PostgresRepo) FindAllLeads(ctx context.Context) ([]model.Lead, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var leads []model.Lead
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("company_id = ?", companyID).
			Find(&leads)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindAllLeads", operation)
	observer.ObserveDbOperationDuration("find_all", "lead", companyID, time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to find leads after retries",
			zap.String("company_id", companyID), zap.Error(err))
		return nil, err // Already wrapped
	}
	return leads, nil
}

// FindLeadByPhone finds a lead by standardized phone.
func (r *PostgresRepo) FindLeadByPhone(ctx context.Context, phone string) (*model.Lead, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	standardized := normalize.Standardize(phone)
	var lead model.Lead
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("phone = ? AND company_id = ?", standardized, companyID).
			First(&lead)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLeadByPhone", operation)
	observer.ObserveDbOperationDuration("find", "lead", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find lead by phone after retries",
			zap.String("phone", standardized),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &lead, nil
}

// FindLeadByName finds the most recently updated lead whose name matches
// case-insensitively. Used as the merge-time phone tie-break fallback.
func (r *PostgresRepo) FindLeadByName(ctx context.Context, name string) (*model.Lead, error) {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}

	var lead model.Lead
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("LOWER(name) = LOWER(?) AND company_id = ?", name, companyID).
			Order("updated_at DESC").
			First(&lead)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindLeadByName", operation)
	observer.ObserveDbOperationDuration("find_by_name", "lead", companyID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		logger.FromContext(ctx).Error("Failed to find lead by name after retries",
			zap.String("name", name),
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &lead, nil
}

// SaveLead upserts one lead on its phone key.
func (r *PostgresRepo) SaveLead(ctx context.Context, lead model.Lead) error {
	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	if lead.CompanyID != "" && lead.CompanyID != companyID {
		return fmt.Errorf("%w: lead CompanyID %s does not match tenant ID %s", apperrors.ErrBadRequest, lead.CompanyID, companyID)
	}

	lead.CompanyID = companyID
	lead.Phone = normalize.Standardize(lead.Phone)
	lead.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "phone"}},
			DoUpdates: clause.AssignmentColumns(model.LeadUpdatableFields()),
		}).Create(&lead)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveLead Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "lead", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save lead after retries",
			zap.String("phone", lead.Phone), zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

// BulkUpsertLeads upserts leads in one transaction on their phone keys.
func (r *PostgresRepo) BulkUpsertLeads(ctx context.Context, leads []model.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	companyID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get tenant ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	validLeads := make([]model.Lead, 0, len(leads))
	for i := range leads {
		if leads[i].CompanyID != "" && leads[i].CompanyID != companyID {
			loggerCtx.Warn("Company ID mismatch for lead, skipping",
				zap.String("phone", leads[i].Phone),
				zap.String("context_company_id", companyID),
				zap.String("lead_company_id", leads[i].CompanyID))
			continue
		}
		leads[i].CompanyID = companyID
		leads[i].Phone = normalize.Standardize(leads[i].Phone)
		leads[i].UpdatedAt = utils.Now()
		validLeads = append(validLeads, leads[i])
	}

	if len(validLeads) == 0 {
		loggerCtx.Info("No valid leads found for bulk upsert after tenant ID filtering")
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
			Columns:   []clause.Column{{Name: "phone"}},
			DoUpdates: clause.AssignmentColumns(model.LeadUpdatableFields()),
		}).Create(&validLeads)

		if result.Error != nil {
			txErr = fmt.Errorf("%w: bulk upsert leads failed: %w", apperrors.ErrDatabase, result.Error)
			return txErr
		}

		if commitErr := tx.Commit().Error; commitErr != nil {
			txErr = checkConstraintViolation(commitErr)
			return txErr
		}
		loggerCtx.Info("Bulk upsert leads successful",
			zap.Int("leads_processed", len(validLeads)), zap.Int64("rows_affected", result.RowsAffected))
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "BulkUpsertLeads Commit", operation)
	observer.ObserveDbOperationDuration("bulk_upsert", "lead", companyID, time.Since(startTime), commitErr)

	if commitErr != nil {
		loggerCtx.Error("Failed to bulk upsert leads after retries", zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}

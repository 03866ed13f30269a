package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pensionos/search-go/internal/errors"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/models"
	"github.com/pensionos/search-go/internal/retrieval"
)

// PlanService 养老金计划服务
type PlanService struct {
	db       *gorm.DB
	embedder retrieval.Embedder
}

// NewPlanService 创建计划服务
func NewPlanService(db *gorm.DB, embedder retrieval.Embedder) *PlanService {
	return &PlanService{db: db, embedder: embedder}
}

// CreatePlanRequest 创建计划请求
type CreatePlanRequest struct {
	CompanyName       string `json:"company_name" validate:"required"`
	PlanType          string `json:"plan_type"`
	Description       string `json:"description"`
	MainContact       string `json:"main_contact"`
	ParticipantsCount int    `json:"participants_count"`
	Tags              string `json:"tags"`
}

// UpdatePlanRequest 更新计划请求，nil字段不修改
type UpdatePlanRequest struct {
	CompanyName       *string `json:"company_name,omitempty"`
	PlanType          *string `json:"plan_type,omitempty"`
	Description       *string `json:"description,omitempty"`
	MainContact       *string `json:"main_contact,omitempty"`
	ParticipantsCount *int    `json:"participants_count,omitempty"`
	Tags              *string `json:"tags,omitempty"`
}

// Create 创建计划并在写入时向量化描述
func (s *PlanService) Create(ctx context.Context, req CreatePlanRequest) (*models.PensionPlan, error) {
	if strings.TrimSpace(req.CompanyName) == "" {
		return nil, errors.NewValidationError("company name is required")
	}

	plan := &models.PensionPlan{
		CompanyName:       req.CompanyName,
		PlanType:          req.PlanType,
		Description:       req.Description,
		MainContact:       req.MainContact,
		ParticipantsCount: req.ParticipantsCount,
		Tags:              req.Tags,
	}

	if strings.TrimSpace(req.Description) != "" {
		embedding, err := s.embedder.Embed(ctx, req.Description)
		if err != nil {
			return nil, errors.NewEmbeddingError(err).WithStage(StageEmbedding)
		}
		plan.Embedding = models.Vector(embedding)
	}

	if err := s.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, errors.NewStoreWriteError(StageDatabase, err)
	}

	logger.Info("计划已创建", zap.Uint("plan_id", plan.ID), zap.String("company", plan.CompanyName))
	return plan, nil
}

// Update 更新计划。描述未变化时复用存量向量，只有描述变了才重新向量化。
func (s *PlanService) Update(ctx context.Context, planID uint, req UpdatePlanRequest) (*models.PensionPlan, error) {
	var plan models.PensionPlan
	if err := s.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("pension plan")
		}
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}

	if req.CompanyName != nil {
		plan.CompanyName = *req.CompanyName
	}
	if req.PlanType != nil {
		plan.PlanType = *req.PlanType
	}
	if req.MainContact != nil {
		plan.MainContact = *req.MainContact
	}
	if req.ParticipantsCount != nil {
		plan.ParticipantsCount = *req.ParticipantsCount
	}
	if req.Tags != nil {
		plan.Tags = *req.Tags
	}

	if req.Description != nil && *req.Description != plan.Description {
		plan.Description = *req.Description
		if strings.TrimSpace(plan.Description) == "" {
			plan.Embedding = nil
		} else {
			embedding, err := s.embedder.Embed(ctx, plan.Description)
			if err != nil {
				return nil, errors.NewEmbeddingError(err).WithStage(StageEmbedding)
			}
			plan.Embedding = models.Vector(embedding)
		}
	}

	if err := s.db.WithContext(ctx).Save(&plan).Error; err != nil {
		return nil, errors.NewStoreWriteError(StageDatabase, err)
	}
	return &plan, nil
}

// Get 按ID取计划，附带文档
func (s *PlanService) Get(ctx context.Context, planID uint) (*models.PensionPlan, error) {
	var plan models.PensionPlan
	if err := s.db.WithContext(ctx).Preload("Documents").First(&plan, planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("pension plan")
		}
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}
	return &plan, nil
}

// List 列出全部计划
func (s *PlanService) List(ctx context.Context) ([]models.PensionPlan, error) {
	var plans []models.PensionPlan
	if err := s.db.WithContext(ctx).Order("created_at").Find(&plans).Error; err != nil {
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}
	return plans, nil
}

// Delete 删除计划，关联文档保留但解除计划引用
func (s *PlanService) Delete(ctx context.Context, planID uint) error {
	var plan models.PensionPlan
	if err := s.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("pension plan")
		}
		return errors.NewStoreReadError(StageDatabase, err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Document{}).
			Where("pension_plan_id = ?", planID).
			Update("pension_plan_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Model(&plan).Association("Clients").Clear(); err != nil {
			return err
		}
		return tx.Delete(&plan).Error
	})
	if err != nil {
		return errors.NewStoreWriteError(StageDatabase, err)
	}

	logger.Info("计划已删除", zap.Uint("plan_id", planID))
	return nil
}

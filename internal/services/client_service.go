package services

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pensionos/search-go/internal/errors"
	"github.com/pensionos/search-go/internal/logger"
	"github.com/pensionos/search-go/internal/models"
)

// ClientService 客户服务
type ClientService struct {
	db *gorm.DB
}

// NewClientService 创建客户服务
func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{db: db}
}

// CreateClientRequest 创建客户请求
type CreateClientRequest struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Company string `json:"company"`
}

// Create 创建客户
func (s *ClientService) Create(ctx context.Context, req CreateClientRequest) (*models.Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, errors.NewValidationError("client name is required")
	}

	client := &models.Client{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Company: req.Company,
		Status:  "active",
	}
	if err := s.db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, errors.NewStoreWriteError(StageDatabase, err)
	}
	return client, nil
}

// Get 按ID取客户，附带关联计划
func (s *ClientService) Get(ctx context.Context, clientID uint) (*models.Client, error) {
	var client models.Client
	if err := s.db.WithContext(ctx).Preload("PensionPlans").First(&client, clientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NewNotFoundError("client")
		}
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}
	return &client, nil
}

// List 列出全部客户
func (s *ClientService) List(ctx context.Context) ([]models.Client, error) {
	var clients []models.Client
	if err := s.db.WithContext(ctx).Order("created_at").Find(&clients).Error; err != nil {
		return nil, errors.NewStoreReadError(StageDatabase, err)
	}
	return clients, nil
}

// AssociatePlan 关联客户与计划
func (s *ClientService) AssociatePlan(ctx context.Context, clientID, planID uint) error {
	var client models.Client
	if err := s.db.WithContext(ctx).First(&client, clientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("client")
		}
		return errors.NewStoreReadError(StageDatabase, err)
	}
	var plan models.PensionPlan
	if err := s.db.WithContext(ctx).First(&plan, planID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("pension plan")
		}
		return errors.NewStoreReadError(StageDatabase, err)
	}

	if err := s.db.WithContext(ctx).Model(&client).Association("PensionPlans").Append(&plan); err != nil {
		return errors.NewStoreWriteError(StageDatabase, err)
	}
	logger.Info("客户关联计划", zap.Uint("client_id", clientID), zap.Uint("plan_id", planID))
	return nil
}

// DissociatePlan 解除客户与计划的关联
func (s *ClientService) DissociatePlan(ctx context.Context, clientID, planID uint) error {
	var client models.Client
	if err := s.db.WithContext(ctx).First(&client, clientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("client")
		}
		return errors.NewStoreReadError(StageDatabase, err)
	}

	plan := models.PensionPlan{ID: planID}
	if err := s.db.WithContext(ctx).Model(&client).Association("PensionPlans").Delete(&plan); err != nil {
		return errors.NewStoreWriteError(StageDatabase, err)
	}
	return nil
}

// Delete 删除客户，级联清理消息与上传记录，计划本身保留
func (s *ClientService) Delete(ctx context.Context, clientID uint) error {
	var client models.Client
	if err := s.db.WithContext(ctx).First(&client, clientID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.NewNotFoundError("client")
		}
		return errors.NewStoreReadError(StageDatabase, err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", clientID).Delete(&models.ChatMessage{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", clientID).Delete(&models.Upload{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&client).Association("PensionPlans").Clear(); err != nil {
			return err
		}
		return tx.Delete(&client).Error
	})
	if err != nil {
		return errors.NewStoreWriteError(StageDatabase, err)
	}

	logger.Info("客户已删除", zap.Uint("client_id", clientID))
	return nil
}

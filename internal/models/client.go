package models

import (
	"time"
)

// Client 客户表
type Client struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"size:200;not null;index" json:"name"`
	Email     string    `gorm:"size:200" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	Company   string    `gorm:"size:200" json:"company"`
	Status    string    `gorm:"size:20;default:'active'" json:"status"` // active, inactive
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	PensionPlans []PensionPlan `gorm:"many2many:client_pension_plans" json:"pension_plans,omitempty"`
	ChatMessages []ChatMessage `gorm:"foreignKey:ClientID" json:"-"`
	Uploads      []Upload      `gorm:"foreignKey:ClientID" json:"-"`
}

func (Client) TableName() string {
	return "clients"
}

package models

import (
	"time"
)

// PensionPlan 养老金计划表
type PensionPlan struct {
	ID                uint      `gorm:"primaryKey;column:id" json:"id"`
	CompanyName       string    `gorm:"column:company_name;size:200;not null;index" json:"company_name"`
	PlanType          string    `gorm:"column:plan_type;size:100" json:"plan_type"`
	Description       string    `gorm:"type:text" json:"description"`
	MainContact       string    `gorm:"column:main_contact;size:200" json:"main_contact"`
	ParticipantsCount int       `gorm:"column:participants_count;default:0" json:"participants_count"`
	Tags              string    `gorm:"size:500" json:"tags"`
	Embedding         Vector    `gorm:"type:json" json:"embedding,omitempty"`
	CreatedAt         time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at" json:"updated_at"`

	Documents []Document `gorm:"foreignKey:PensionPlanID" json:"documents,omitempty"`
	Clients   []Client   `gorm:"many2many:client_pension_plans" json:"clients,omitempty"`
}

func (PensionPlan) TableName() string {
	return "pension_plans"
}

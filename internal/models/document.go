package models

import (
	"time"
)

// Document 文档表，向量与摘要在摄取时一次性写入
type Document struct {
	ID             uint      `gorm:"primaryKey;column:id" json:"id"`
	DocID          string    `gorm:"column:doc_id;size:64;uniqueIndex;not null" json:"doc_id"`
	PensionPlanID  *uint     `gorm:"column:pension_plan_id;index" json:"pension_plan_id"`
	Filename       string    `gorm:"size:500;not null" json:"filename"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Embedding      Vector    `gorm:"type:json" json:"embedding,omitempty"`
	Summary        string    `gorm:"type:text" json:"summary"`
	KeyInformation string    `gorm:"column:key_information;type:text" json:"key_information"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`

	PensionPlan *PensionPlan `gorm:"foreignKey:PensionPlanID" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

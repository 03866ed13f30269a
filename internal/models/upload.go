package models

import (
	"time"
)

// 上传处理状态，与摄取流水线的阶段对应
const (
	UploadStatusPending   = "pending"
	UploadStatusProcessed = "processed"
	UploadStatusFailed    = "failed"
)

// Upload 上传记录表
type Upload struct {
	ID         uint      `gorm:"primaryKey;column:id" json:"id"`
	ClientID   uint      `gorm:"column:client_id;not null;index" json:"client_id"`
	DocumentID *uint     `gorm:"column:document_id" json:"document_id"`
	Filename   string    `gorm:"size:500;not null" json:"filename"`
	FileType   string    `gorm:"column:file_type;size:100" json:"file_type"`
	Status     string    `gorm:"size:20;default:'pending'" json:"status"`
	FailStage  string    `gorm:"column:fail_stage;size:50" json:"fail_stage,omitempty"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`

	Client   *Client   `gorm:"foreignKey:ClientID" json:"-"`
	Document *Document `gorm:"foreignKey:DocumentID" json:"-"`
}

func (Upload) TableName() string {
	return "uploads"
}

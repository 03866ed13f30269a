package models

import (
	"time"
)

// ChatMessage 聊天消息表
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey;column:id" json:"id"`
	ClientID  uint      `gorm:"column:client_id;not null;index" json:"client_id"`
	Role      string    `gorm:"size:20;not null" json:"role"` // user, assistant
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`

	Client *Client `gorm:"foreignKey:ClientID" json:"-"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

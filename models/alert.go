package models

import "time"

type Alert struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(128);index" json:"user_id"`
	ScanID    string    `gorm:"type:varchar(36);index" json:"scan_id,omitempty"`
	Type      string    `gorm:"size:20" json:"type"` // "danger" | "warning"
	Message   string    `gorm:"type:text" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

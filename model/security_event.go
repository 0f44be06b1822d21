package model

import "time"

// SecurityEvent is the durable audit row. Rows are append-only: nothing in
// the codebase updates them after insert; the sweeper may archive and prune
// rows past the retention window.
type SecurityEvent struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text;not null"`
	Type      string    `json:"type" gorm:"not null;index;size:64"`
	Severity  string    `json:"severity" gorm:"not null;index;size:16"`
	Payload   string    `json:"payload" gorm:"type:text"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (SecurityEvent) TableName() string {
	return "security_events"
}

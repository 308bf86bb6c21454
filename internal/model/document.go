package model

import "time"

// Document records an ingested PDF. Its chunks live in the vector index.
type Document struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	Name      string    `gorm:"size:256;not null" json:"name"`
	Pages     int       `gorm:"not null" json:"pages"`
	Chunks    int       `gorm:"not null" json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

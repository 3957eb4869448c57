package models

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// PublishTarget holds WordPress credentials for one owner.
type PublishTarget struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	OwnerID     uint64    `gorm:"uniqueIndex;not null" json:"-"`
	SiteURL     string    `gorm:"type:varchar(512);not null" json:"site_url"`
	Username    string    `gorm:"type:varchar(128);not null" json:"username"`
	AppPassword string    `gorm:"type:varchar(255);not null" json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (PublishTarget) TableName() string { return "publish_targets" }

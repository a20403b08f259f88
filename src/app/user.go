package app

import "time"

// User is the local identity record. It is created on the first successful
// OAuth resolution and returned unchanged on every later login.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	Name      *string   `json:"name" gorm:"size:255"`
	AvatarURL *string   `json:"avatar_url" gorm:"size:500"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OAuthAccounts []OAuthAccount `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Images        []Image        `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

// DisplayName returns the optional name or "".
func (u *User) DisplayName() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}

// OAuthAccount links one external identity to one user. (Provider,
// ProviderUserID) is unique.
type OAuthAccount struct {
	ID             uint      `gorm:"primaryKey"`
	UserID         uint      `gorm:"not null;index"`
	Provider       string    `gorm:"size:50;not null;uniqueIndex:uq_provider_user"`
	ProviderUserID string    `gorm:"size:255;not null;uniqueIndex:uq_provider_user"`
	AccessToken    *string   `gorm:"type:text"`
	RefreshToken   *string   `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Image is metadata for an object in storage. The row is written when the
// upload URL is issued, before any bytes exist under ObjectKey.
type Image struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"not null;index"`
	ObjectKey   string    `json:"key" gorm:"size:500;uniqueIndex;not null"`
	Filename    string    `json:"filename" gorm:"size:500"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;index"`
}

// OAuthInfo is the provider profile handed to the identity resolver.
type OAuthInfo struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           *string
	AvatarURL      *string
}

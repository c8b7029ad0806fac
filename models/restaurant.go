package models

import "time"

type Restaurant struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Name               string     `gorm:"type:varchar(255);not null" json:"name"`
	SubscriptionActive bool       `gorm:"not null;default:true" json:"subscription_active"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`
	CreatedAt          time.Time  `json:"-"`
	UpdatedAt          time.Time  `json:"-"`
}

// Active reports whether orders may flow for the restaurant at the given moment.
func (r Restaurant) Active(now time.Time) bool {
	if !r.SubscriptionActive {
		return false
	}
	return r.SubscriptionEndsAt == nil || now.Before(*r.SubscriptionEndsAt)
}

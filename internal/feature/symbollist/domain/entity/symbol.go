// Package entity defines the domain models for the symbollist feature.
package entity

import "time"

// Symbol is an instrument the ingestion CLI can be pointed at with --active.
// Code is the Twelve Data symbol ("EUR/USD", "XAU/USD").
type Symbol struct {
	ID         uint      `gorm:"primaryKey"`
	Code       string    `gorm:"size:20;not null;uniqueIndex"`
	Name       string    `gorm:"size:255;not null"`
	AssetClass string    `gorm:"size:50;not null;default:forex"` // forex, commodity, crypto
	IsActive   bool      `gorm:"not null;default:true"`
	SortKey    int       `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

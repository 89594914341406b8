package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

type Product struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Sizes     []string  `json:"sizes"`
	Colors    []string  `json:"colors"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) HasSize(size string) bool {
	if len(p.Sizes) == 0 {
		return size == ""
	}
	return slices.Contains(p.Sizes, size)
}

func (p *Product) HasColor(color string) bool {
	if len(p.Colors) == 0 {
		return color == ""
	}
	return slices.Contains(p.Colors, color)
}

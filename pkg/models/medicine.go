package models

import (
	"time"

	"github.com/google/uuid"
)

// Medicine is a stocked item in the pharmacy inventory.
type Medicine struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Stock     int       `json:"stock" db:"stock"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MedicineInput is the body of create and update requests. Stock is a
// pointer so that an explicit zero is distinguishable from a missing
// field.
type MedicineInput struct {
	Name  string `json:"name" validate:"required,max=200"`
	Stock *int   `json:"stock" validate:"required,gte=0"`
}

// NewMedicine builds a medicine with a generated ID from a validated
// input.
func NewMedicine(in MedicineInput) *Medicine {
	now := time.Now().UTC()
	m := &Medicine{
		ID:        uuid.NewString(),
		Name:      in.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Stock != nil {
		m.Stock = *in.Stock
	}
	return m
}

// Apply overwrites the mutable fields of m with in and bumps UpdatedAt.
func (m *Medicine) Apply(in MedicineInput) {
	m.Name = in.Name
	if in.Stock != nil {
		m.Stock = *in.Stock
	}
	m.UpdatedAt = time.Now().UTC()
}

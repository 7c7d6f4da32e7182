package models

import (
	"time"

	"github.com/google/uuid"
)

// Distribution records units of a medicine handed out by a staff member.
// DistributedBy is the subject of the token that authorized it.
type Distribution struct {
	ID            string    `json:"id" db:"id"`
	MedicineID    string    `json:"medicine_id" db:"medicine_id"`
	Quantity      int       `json:"quantity" db:"quantity"`
	PatientID     string    `json:"patient_id,omitempty" db:"patient_id"`
	Note          string    `json:"note,omitempty" db:"note"`
	DistributedBy string    `json:"distributed_by" db:"distributed_by"`
	DistributedAt time.Time `json:"distributed_at" db:"distributed_at"`
}

// DistributionRequest is the body of POST /pharmacy/distributions.
type DistributionRequest struct {
	MedicineID string `json:"medicine_id" validate:"required,max=64"`
	Quantity   int    `json:"quantity" validate:"required,gt=0,lte=10000"`
	PatientID  string `json:"patient_id" validate:"omitempty,max=64"`
	Note       string `json:"note" validate:"omitempty,max=500"`
}

// NewDistribution builds the record for req on behalf of subject.
func NewDistribution(req DistributionRequest, subject string) *Distribution {
	return &Distribution{
		ID:            uuid.NewString(),
		MedicineID:    req.MedicineID,
		Quantity:      req.Quantity,
		PatientID:     req.PatientID,
		Note:          req.Note,
		DistributedBy: subject,
		DistributedAt: time.Now().UTC(),
	}
}

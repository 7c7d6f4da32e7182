package pharmacy

import (
	"context"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/models"
)

// ReasonInsufficientStock is the "reason" detail of a 409 returned when a
// distribution asks for more units than are in stock.
const ReasonInsufficientStock = "insufficient_stock"

// Store persists the inventory. Missing medicines are reported with
// [sserr.CodeNotFoundMedicine].
type Store interface {
	ListMedicines(ctx context.Context) ([]models.Medicine, error)
	GetMedicine(ctx context.Context, id string) (*models.Medicine, error)
	CreateMedicine(ctx context.Context, m *models.Medicine) error
	UpdateMedicine(ctx context.Context, id string, in models.MedicineInput) (*models.Medicine, error)
	DeleteMedicine(ctx context.Context, id string) error

	// Distribute atomically decrements the medicine's stock by
	// d.Quantity and records d.
	Distribute(ctx context.Context, d *models.Distribution) error

	// ListDistributions returns the distributions of medicineID, oldest
	// first.
	ListDistributions(ctx context.Context, medicineID string) ([]models.Distribution, error)
}

// SeedMedicines returns the reference inventory loaded into an empty
// store.
func SeedMedicines() []models.Medicine {
	return []models.Medicine{
		{ID: "med-001", Name: "Paracetamol 500mg", Stock: 120},
		{ID: "med-002", Name: "Ibuprofen 200mg", Stock: 75},
	}
}

func medicineNotFound(id string) *sserr.Error {
	return sserr.Newf(sserr.CodeNotFoundMedicine, "medicine %q not found", id).WithDetail("id", id)
}

func insufficientStock(id string, available, requested int) *sserr.Error {
	return sserr.Newf(sserr.CodeInsufficientStock, "medicine %q has %d units, %d requested", id, available, requested).
		WithDetails(map[string]any{
			"reason":    ReasonInsufficientStock,
			"available": available,
			"requested": requested,
		})
}

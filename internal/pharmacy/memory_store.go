package pharmacy

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/models"
)

// MemoryStore is the in-process [Store] used when no database is
// configured. It is safe for concurrent use.
type MemoryStore struct {
	mu            sync.RWMutex
	medicines     map[string]models.Medicine
	distributions []models.Distribution
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding seed.
func NewMemoryStore(seed ...models.Medicine) *MemoryStore {
	s := &MemoryStore{medicines: make(map[string]models.Medicine, len(seed))}
	now := time.Now().UTC()
	for _, m := range seed {
		if m.CreatedAt.IsZero() {
			m.CreatedAt, m.UpdatedAt = now, now
		}
		s.medicines[m.ID] = m
	}
	return s
}

// ListMedicines returns every medicine ordered by ID.
func (s *MemoryStore) ListMedicines(context.Context) ([]models.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Medicine, 0, len(s.medicines))
	for _, m := range s.medicines {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b models.Medicine) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetMedicine(_ context.Context, id string) (*models.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.medicines[id]
	if !ok {
		return nil, medicineNotFound(id)
	}
	return &m, nil
}

func (s *MemoryStore) CreateMedicine(_ context.Context, m *models.Medicine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medicines[m.ID]; ok {
		return sserr.Conflict("medicine already exists").WithDetail("id", m.ID)
	}
	s.medicines[m.ID] = *m
	return nil
}

func (s *MemoryStore) UpdateMedicine(_ context.Context, id string, in models.MedicineInput) (*models.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.medicines[id]
	if !ok {
		return nil, medicineNotFound(id)
	}
	m.Apply(in)
	s.medicines[id] = m
	return &m, nil
}

// DeleteMedicine removes the medicine. Medicines with recorded
// distributions are kept, matching the foreign key in the Postgres
// schema.
func (s *MemoryStore) DeleteMedicine(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.medicines[id]; !ok {
		return medicineNotFound(id)
	}
	if slices.ContainsFunc(s.distributions, func(d models.Distribution) bool { return d.MedicineID == id }) {
		return sserr.Conflict("medicine has recorded distributions").WithDetail("id", id)
	}
	delete(s.medicines, id)
	return nil
}

func (s *MemoryStore) Distribute(_ context.Context, d *models.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.medicines[d.MedicineID]
	if !ok {
		return medicineNotFound(d.MedicineID)
	}
	if m.Stock < d.Quantity {
		return insufficientStock(m.ID, m.Stock, d.Quantity)
	}
	m.Stock -= d.Quantity
	m.UpdatedAt = d.DistributedAt
	s.medicines[m.ID] = m
	s.distributions = append(s.distributions, *d)
	return nil
}

// ListDistributions returns the distributions of medicineID in the
// order they were made.
func (s *MemoryStore) ListDistributions(_ context.Context, medicineID string) ([]models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.medicines[medicineID]; !ok {
		return nil, medicineNotFound(medicineID)
	}
	out := []models.Distribution{}
	for _, d := range s.distributions {
		if d.MedicineID == medicineID {
			out = append(out, d)
		}
	}
	return out, nil
}

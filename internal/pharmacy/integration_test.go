//go:build integration

// Run with:
//
//	go test -v -race -tags=integration ./internal/pharmacy/...
package pharmacy_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/StricklySoft/clinic-hub/internal/pharmacy"
	"github.com/StricklySoft/clinic-hub/internal/testutil/containers"
	"github.com/StricklySoft/clinic-hub/pkg/clients/postgres"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/models"
)

func setupStore(t *testing.T) *pharmacy.PostgresStore {
	t.Helper()
	ctx := context.Background()

	result, err := containers.StartPostgres(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() {
		if termErr := result.Container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate postgres container: %v", termErr)
		}
	})

	client, err := postgres.NewClient(ctx, postgres.Config{URI: result.ConnString, MaxConns: 10})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(client.Close)

	store := pharmacy.NewPostgresStore(client)
	// Twice, to show the migration is idempotent.
	for range 2 {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
	}
	return store
}

func TestPostgresStore_Seeded(t *testing.T) {
	store := setupStore(t)

	meds, err := store.ListMedicines(context.Background())
	if err != nil {
		t.Fatalf("ListMedicines() error = %v", err)
	}
	if len(meds) != 2 || meds[0].ID != "med-001" || meds[1].Stock != 75 {
		t.Errorf("ListMedicines() = %+v", meds)
	}
}

func TestPostgresStore_ConcurrentDistributions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		granted atomic.Int32
		refused atomic.Int32
	)
	// med-002 starts with 75 units; 100 requests of one unit each.
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d := models.NewDistribution(models.DistributionRequest{MedicineID: "med-002", Quantity: 1}, "staff-sub")
			err := store.Distribute(ctx, d)
			switch {
			case err == nil:
				granted.Add(1)
			case sserr.HasCode(err, sserr.CodeInsufficientStock):
				refused.Add(1)
			default:
				t.Errorf("Distribute() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 75 || refused.Load() != 25 {
		t.Errorf("granted = %d, refused = %d, want 75 and 25", granted.Load(), refused.Load())
	}
	m, err := store.GetMedicine(ctx, "med-002")
	if err != nil {
		t.Fatalf("GetMedicine() error = %v", err)
	}
	if m.Stock != 0 {
		t.Errorf("stock = %d, want 0", m.Stock)
	}

	list, err := store.ListDistributions(ctx, "med-002")
	if err != nil {
		t.Fatalf("ListDistributions() error = %v", err)
	}
	if len(list) != 75 {
		t.Errorf("len(distributions) = %d, want 75", len(list))
	}
	if err := store.DeleteMedicine(ctx, "med-002"); !sserr.HasCode(err, sserr.CodeConflict) {
		t.Errorf("DeleteMedicine() code = %q, want %q", sserr.GetCode(err), sserr.CodeConflict)
	}
}

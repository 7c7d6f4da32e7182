package pharmacy

import (
	"context"
	_ "embed"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/StricklySoft/clinic-hub/pkg/clients/postgres"
	sserr "github.com/StricklySoft/clinic-hub/pkg/errors"
	"github.com/StricklySoft/clinic-hub/pkg/models"
)

//go:embed schema.sql
var schemaSQL string

const pgForeignKeyViolation = "23503"

const (
	medicineColumns = `id, name, stock, created_at, updated_at`

	listMedicinesSQL  = `SELECT ` + medicineColumns + ` FROM medicines ORDER BY id`
	getMedicineSQL    = `SELECT ` + medicineColumns + ` FROM medicines WHERE id = $1`
	insertMedicineSQL = `INSERT INTO medicines (` + medicineColumns + `) VALUES ($1, $2, $3, $4, $5)`
	updateMedicineSQL = `UPDATE medicines SET name = $2, stock = COALESCE($3, stock), updated_at = now()
		WHERE id = $1 RETURNING ` + medicineColumns
	deleteMedicineSQL = `DELETE FROM medicines WHERE id = $1`

	lockStockSQL          = `SELECT stock FROM medicines WHERE id = $1 FOR UPDATE`
	decrementStockSQL     = `UPDATE medicines SET stock = stock - $2, updated_at = $3 WHERE id = $1`
	insertDistributionSQL = `INSERT INTO distributions
		(id, medicine_id, quantity, patient_id, note, distributed_by, distributed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	listDistributionsSQL = `SELECT id, medicine_id, quantity, patient_id, note, distributed_by, distributed_at
		FROM distributions WHERE medicine_id = $1 ORDER BY distributed_at, id`
)

// PostgresStore is the [Store] backed by Postgres.
type PostgresStore struct {
	db *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db.
func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the tables if they do not exist and seeds the
// reference medicines. It is safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return sserr.Wrap(err, sserr.CodeDatabase, "pharmacy: schema migration failed")
	}
	return nil
}

func (s *PostgresStore) ListMedicines(ctx context.Context) ([]models.Medicine, error) {
	rows, err := s.db.Query(ctx, listMedicinesSQL)
	if err != nil {
		return nil, err
	}
	meds, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Medicine])
	if err != nil {
		return nil, postgres.WrapError(err, "pharmacy: failed to read medicines")
	}
	return meds, nil
}

func (s *PostgresStore) GetMedicine(ctx context.Context, id string) (*models.Medicine, error) {
	rows, err := s.db.Query(ctx, getMedicineSQL, id)
	if err != nil {
		return nil, err
	}
	return collectMedicine(rows, id)
}

func (s *PostgresStore) CreateMedicine(ctx context.Context, m *models.Medicine) error {
	_, err := s.db.Exec(ctx, insertMedicineSQL, m.ID, m.Name, m.Stock, m.CreatedAt, m.UpdatedAt)
	return err
}

func (s *PostgresStore) UpdateMedicine(ctx context.Context, id string, in models.MedicineInput) (*models.Medicine, error) {
	rows, err := s.db.Query(ctx, updateMedicineSQL, id, in.Name, in.Stock)
	if err != nil {
		return nil, err
	}
	return collectMedicine(rows, id)
}

// DeleteMedicine removes the medicine. A medicine with recorded
// distributions is a conflict.
func (s *PostgresStore) DeleteMedicine(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, deleteMedicineSQL, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return sserr.Conflict("medicine has recorded distributions").WithDetail("id", id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return medicineNotFound(id)
	}
	return nil
}

// Distribute locks the medicine row, checks and decrements its stock
// and records d in one transaction.
func (s *PostgresStore) Distribute(ctx context.Context, d *models.Distribution) error {
	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		var stock int
		err := tx.QueryRow(ctx, lockStockSQL, d.MedicineID).Scan(&stock)
		if errors.Is(err, pgx.ErrNoRows) {
			return medicineNotFound(d.MedicineID)
		}
		if err != nil {
			return postgres.WrapError(err, "pharmacy: failed to lock medicine")
		}
		if stock < d.Quantity {
			return insufficientStock(d.MedicineID, stock, d.Quantity)
		}

		if _, err := tx.Exec(ctx, decrementStockSQL, d.MedicineID, d.Quantity, d.DistributedAt); err != nil {
			return postgres.WrapError(err, "pharmacy: failed to update stock")
		}
		if _, err := tx.Exec(ctx, insertDistributionSQL,
			d.ID, d.MedicineID, d.Quantity, d.PatientID, d.Note, d.DistributedBy, d.DistributedAt,
		); err != nil {
			return postgres.WrapError(err, "pharmacy: failed to record distribution")
		}
		return nil
	})
}

func (s *PostgresStore) ListDistributions(ctx context.Context, medicineID string) ([]models.Distribution, error) {
	if _, err := s.GetMedicine(ctx, medicineID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, listDistributionsSQL, medicineID)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.Distribution])
	if err != nil {
		return nil, postgres.WrapError(err, "pharmacy: failed to read distributions")
	}
	return out, nil
}

func collectMedicine(rows pgx.Rows, id string) (*models.Medicine, error) {
	m, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.Medicine])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, medicineNotFound(id)
	}
	if err != nil {
		return nil, postgres.WrapError(err, "pharmacy: failed to read medicine")
	}
	return &m, nil
}

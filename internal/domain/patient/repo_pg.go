package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, patient_code, first_name, last_name, date_of_birth::text, gender, phone, email,
	address, blood_type, emergency_contact_name, emergency_contact_phone, allergies, medical_history,
	is_active, created_by, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.PatientCode, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &p.BloodType, &p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.Allergies, &p.MedicalHistory, &p.IsActive, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("patient")
		}
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, patient_code, first_name, last_name, date_of_birth, gender, phone, email,
			address, blood_type, emergency_contact_name, emergency_contact_phone, allergies, medical_history,
			is_active, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		p.ID, p.PatientCode, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email,
		p.Address, p.BloodType, p.EmergencyContactName, p.EmergencyContactPhone, p.Allergies, p.MedicalHistory,
		p.IsActive, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE patient_code = $1`, code))
}

// Update writes every mutable column. patient_code is deliberately absent.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4::date, gender=$5, phone=$6,
			email=$7, address=$8, blood_type=$9, emergency_contact_name=$10, emergency_contact_phone=$11,
			allergies=$12, medical_history=$13, updated_at=$14
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Phone, p.Email, p.Address, p.BloodType,
		p.EmergencyContactName, p.EmergencyContactPhone, p.Allergies, p.MedicalHistory, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET is_active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient")
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, f Filter) ([]*Patient, int, error) {
	where := []string{"1=1"}
	var args []any
	idx := 1
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR phone ILIKE $%d OR patient_code ILIKE $%d)",
			idx, idx, idx, idx))
		args = append(args, "%"+q+"%")
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM patient WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		patientCols, clause, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

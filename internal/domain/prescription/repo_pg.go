package prescription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
)

type prescriptionRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const rxCols = `id, patient_id, doctor_id, appointment_id, diagnosis, medications, instructions, notes,
	follow_up_date::text, created_by, created_at`

func (r *prescriptionRepoPG) scanRx(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var meds []byte
	err := row.Scan(&p.ID, &p.PatientID, &p.DoctorID, &p.AppointmentID, &p.Diagnosis, &meds,
		&p.Instructions, &p.Notes, &p.FollowUpDate, &p.CreatedBy, &p.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("prescription")
		}
		return nil, err
	}
	if err := json.Unmarshal(meds, &p.Medications); err != nil {
		return nil, fmt.Errorf("decode medications of %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	meds, err := json.Marshal(p.Medications)
	if err != nil {
		return fmt.Errorf("encode medications: %w", err)
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO prescription (id, patient_id, doctor_id, appointment_id, diagnosis, medications,
			instructions, notes, follow_up_date, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6::jsonb,$7,$8,$9::date,$10,$11)`,
		p.ID, p.PatientID, p.DoctorID, p.AppointmentID, p.Diagnosis, string(meds),
		p.Instructions, p.Notes, p.FollowUpDate, p.CreatedBy, p.CreatedAt)
	return err
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return r.scanRx(r.conn(ctx).QueryRow(ctx, `SELECT `+rxCols+` FROM prescription WHERE id = $1`, id))
}

func (r *prescriptionRepoPG) List(ctx context.Context, f Filter) ([]*Prescription, int, error) {
	where := []string{"1=1"}
	var args []any
	for col, v := range map[string]*uuid.UUID{
		"patient_id":     f.PatientID,
		"doctor_id":      f.DoctorID,
		"appointment_id": f.AppointmentID,
	} {
		if v != nil {
			args = append(args, *v)
			where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM prescription WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM prescription WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		rxCols, clause, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Prescription
	for rows.Next() {
		p, err := r.scanRx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

package scheduling

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

type appointmentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *appointmentRepoPG) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

const apptCols = `id, patient_id, doctor_id, scheduled_at, appointment_day::text, appointment_time, type, status,
	token_number, reason, notes, cancellation_reason, created_by, confirmed_at, completed_at, cancelled_at,
	created_at, updated_at`

func (r *appointmentRepoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &a.AppointmentDate, &a.AppointmentTime,
		&a.Type, &a.Status, &a.TokenNumber, &a.Reason, &a.Notes, &a.CancellationReason, &a.CreatedBy,
		&a.ConfirmedAt, &a.CompletedAt, &a.CancelledAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("appointment")
		}
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, scheduled_at, appointment_day, appointment_time,
			type, status, token_number, reason, notes, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::date,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, a.AppointmentDate, a.AppointmentTime,
		a.Type, a.Status, a.TokenNumber, a.Reason, a.Notes, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *appointmentRepoPG) Update(ctx context.Context, a *Appointment, from string) (bool, error) {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status=$3, reason=$4, notes=$5, cancellation_reason=$6,
			confirmed_at=$7, completed_at=$8, cancelled_at=$9, updated_at=$10
		WHERE id = $1 AND status = $2`,
		a.ID, from, a.Status, a.Reason, a.Notes, a.CancellationReason,
		a.ConfirmedAt, a.CompletedAt, a.CancelledAt, a.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) LockDoctorDay(ctx context.Context, doctorID uuid.UUID, day string) error {
	_, err := r.conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		"appointment:"+doctorID.String()+":"+day)
	return err
}

func (r *appointmentRepoPG) MaxToken(ctx context.Context, doctorID uuid.UUID, day string) (int, error) {
	var max int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(MAX(token_number), 0) FROM appointment
		WHERE doctor_id = $1 AND appointment_day = $2::date`, doctorID, day).Scan(&max)
	return max, err
}

func (r *appointmentRepoPG) CountActiveAt(ctx context.Context, doctorID uuid.UUID, at time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE doctor_id = $1 AND scheduled_at = $2 AND status <> 'cancelled'`, doctorID, at).Scan(&n)
	return n, err
}

func (r *appointmentRepoPG) ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day string) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointment
		WHERE doctor_id = $1 AND appointment_day = $2::date
		ORDER BY token_number`, doctorID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *appointmentRepoPG) Search(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	where := []string{"1=1"}
	var args []any
	idx := 1
	add := func(cond string, v any) {
		where = append(where, fmt.Sprintf(cond, idx))
		args = append(args, v)
		idx++
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.DoctorID != nil {
		add("doctor_id = $%d", *f.DoctorID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.From != "" {
		add("appointment_day >= $%d::date", f.From)
	}
	if f.To != "" {
		add("appointment_day <= $%d::date", f.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM appointment WHERE %s
		ORDER BY scheduled_at DESC, token_number LIMIT $%d OFFSET $%d`, apptCols, clause, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items, err := r.collect(rows)
	return items, total, err
}

func (r *appointmentRepoPG) collect(rows pgx.Rows) ([]*Appointment, error) {
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

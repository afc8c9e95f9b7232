package staff

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

// -- User Repository --

type userRepoPG struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, email, password_hash, role, first_name, last_name, phone, specialization,
	department, license_number, consultation_fee, is_active, last_login_at, created_at, updated_at`

func (r *userRepoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName,
		&u.Phone, &u.Specialization, &u.Department, &u.LicenseNumber, &u.ConsultationFee,
		&u.IsActive, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO staff_user (id, email, password_hash, role, first_name, last_name, phone,
			specialization, department, license_number, consultation_fee, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		u.ID, u.Email, u.PasswordHash, u.Role, u.FirstName, u.LastName, u.Phone,
		u.Specialization, u.Department, u.LicenseNumber, u.ConsultationFee, u.IsActive, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE email = $1`, email))
}

func (r *userRepoPG) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE staff_user SET password_hash=$2, first_name=$3, last_name=$4, phone=$5,
			specialization=$6, department=$7, license_number=$8, consultation_fee=$9,
			is_active=$10, last_login_at=$11, updated_at=$12
		WHERE id = $1`,
		u.ID, u.PasswordHash, u.FirstName, u.LastName, u.Phone, u.Specialization, u.Department,
		u.LicenseNumber, u.ConsultationFee, u.IsActive, u.LastLoginAt, u.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user")
	}
	return nil
}

func (r *userRepoPG) List(ctx context.Context, f UserFilter) ([]*User, int, error) {
	where := []string{"1=1"}
	var args []any
	idx := 1
	if f.Role != "" {
		where = append(where, fmt.Sprintf("role = $%d", idx))
		args = append(args, f.Role)
		idx++
	}
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR specialization ILIKE $%d)",
			idx, idx, idx, idx))
		args = append(args, "%"+q+"%")
		idx++
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM staff_user WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM staff_user WHERE %s ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`,
		userCols, clause, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

// -- Schedule Repository --

type scheduleRepoPG struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepoPG{pool: pool}
}

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *scheduleRepoPG) ReplaceWorkingHours(ctx context.Context, doctorID uuid.UUID, hours []*WorkingHours) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM working_hours WHERE doctor_id = $1`, doctorID); err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, h := range hours {
			h.ID = uuid.New()
			h.DoctorID = doctorID
			h.CreatedAt = now
			_, err := r.conn(ctx).Exec(ctx, `
				INSERT INTO working_hours (id, doctor_id, day_of_week, start_time, end_time, slot_minutes, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				h.ID, h.DoctorID, h.DayOfWeek, h.StartTime, h.EndTime, h.SlotMinutes, h.CreatedAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *scheduleRepoPG) ListWorkingHours(ctx context.Context, doctorID uuid.UUID) ([]*WorkingHours, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, doctor_id, day_of_week, start_time, end_time, slot_minutes, created_at
		FROM working_hours WHERE doctor_id = $1 ORDER BY day_of_week, start_time`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*WorkingHours
	for rows.Next() {
		var h WorkingHours
		if err := rows.Scan(&h.ID, &h.DoctorID, &h.DayOfWeek, &h.StartTime, &h.EndTime, &h.SlotMinutes, &h.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

const leaveCols = `id, doctor_id, start_date::text, end_date::text, reason, created_by, created_at`

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	if err := row.Scan(&l.ID, &l.DoctorID, &l.StartDate, &l.EndDate, &l.Reason, &l.CreatedBy, &l.CreatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *scheduleRepoPG) CreateLeave(ctx context.Context, l *Leave) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now().UTC()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_leave (id, doctor_id, start_date, end_date, reason, created_by, created_at)
		VALUES ($1,$2,$3::date,$4::date,$5,$6,$7)`,
		l.ID, l.DoctorID, l.StartDate, l.EndDate, l.Reason, l.CreatedBy, l.CreatedAt)
	return err
}

func (r *scheduleRepoPG) ListLeaves(ctx context.Context, doctorID uuid.UUID, from string) ([]*Leave, error) {
	query := `SELECT ` + leaveCols + ` FROM doctor_leave WHERE doctor_id = $1`
	args := []any{doctorID}
	if from != "" {
		query += ` AND end_date >= $2::date`
		args = append(args, from)
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY start_date`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *scheduleRepoPG) DeleteLeave(ctx context.Context, doctorID, leaveID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM doctor_leave WHERE id = $1 AND doctor_id = $2`, leaveID, doctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("leave")
	}
	return nil
}

func (r *scheduleRepoPG) LeaveOn(ctx context.Context, doctorID uuid.UUID, day string) (*Leave, error) {
	l, err := scanLeave(r.conn(ctx).QueryRow(ctx, `
		SELECT `+leaveCols+` FROM doctor_leave
		WHERE doctor_id = $1 AND $2::date BETWEEN start_date AND end_date
		ORDER BY start_date LIMIT 1`, doctorID, day))
	if db.IsNoRows(err) {
		return nil, nil
	}
	return l, err
}

package billing

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

type paymentRepoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &paymentRepoPG{pool: pool}
}

func (r *paymentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const paymentCols = `id, receipt_number, patient_id, appointment_id, amount, currency, method, status,
	description, insurance_provider, insurance_policy_number, paid_at, refunded_at, refund_reason,
	created_by, created_at, updated_at`

func (r *paymentRepoPG) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ReceiptNumber, &p.PatientID, &p.AppointmentID, &p.Amount, &p.Currency,
		&p.Method, &p.Status, &p.Description, &p.InsuranceProvider, &p.InsurancePolicyNumber,
		&p.PaidAt, &p.RefundedAt, &p.RefundReason, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("payment")
		}
		return nil, err
	}
	return &p, nil
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payment (id, receipt_number, patient_id, appointment_id, amount, currency, method, status,
			description, insurance_provider, insurance_policy_number, paid_at, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.ReceiptNumber, p.PatientID, p.AppointmentID, p.Amount, p.Currency, p.Method, p.Status,
		p.Description, p.InsuranceProvider, p.InsurancePolicyNumber, p.PaidAt, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return r.scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE id = $1`, id))
}

func (r *paymentRepoPG) GetByReceipt(ctx context.Context, receipt string) (*Payment, error) {
	return r.scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM payment WHERE receipt_number = $1`, receipt))
}

func (r *paymentRepoPG) Transition(ctx context.Context, p *Payment, from string) (bool, error) {
	p.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET status=$3, paid_at=$4, refunded_at=$5, refund_reason=$6, updated_at=$7
		WHERE id = $1 AND status = $2`,
		p.ID, from, p.Status, p.PaidAt, p.RefundedAt, p.RefundReason, p.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *paymentRepoPG) List(ctx context.Context, f Filter) ([]*Payment, int, error) {
	where := []string{"1=1"}
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.AppointmentID != nil {
		add("appointment_id = $%d", *f.AppointmentID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Method != "" {
		add("method = $%d", f.Method)
	}
	if !f.CreatedFrom.IsZero() {
		add("created_at >= $%d", f.CreatedFrom)
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at < $%d", f.CreatedBefore)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payment WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM payment WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentCols, clause, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *paymentRepoPG) Summary(ctx context.Context, from, to time.Time, currency string) ([]SummaryRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT method, status, COUNT(*) AS count, COALESCE(SUM(amount), 0)::float8 AS amount
		FROM payment
		WHERE created_at >= $1 AND created_at < $2 AND currency = $3
		GROUP BY method, status
		ORDER BY method, status`, from, to, currency)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[SummaryRow])
}

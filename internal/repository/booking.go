package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// BookingRepository - чтение бронирований портала и связанных данных.
type BookingRepository interface {
	// GetByID возвращает бронирование по UUID.
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	// LockForUpdate блокирует строку бронирования до конца транзакции.
	LockForUpdate(ctx context.Context, id string) (*model.Booking, error)
	// GetUser возвращает владельца бронирования.
	GetUser(ctx context.Context, userID string) (*model.User, error)
	// ListItems возвращает аналитические позиции в порядке position.
	ListItems(ctx context.Context, bookingID string) ([]model.LineItem, error)
	// ListReservations возвращает аренды рабочих мест с дополнительными услугами.
	ListReservations(ctx context.Context, bookingID string) ([]model.WorkspaceReservation, error)
	// ListPricing возвращает строки прайса для рабочих мест и категории пользователя.
	ListPricing(ctx context.Context, workspaceIDs []string, userType string) ([]model.WorkspacePricing, error)
}

type bookingRepo struct {
	db DBTX
}

// NewBookingRepository создаёт репозиторий бронирований.
func NewBookingRepository(db DBTX) BookingRepository {
	return &bookingRepo{db: db}
}

const bookingColumns = `id, booking_number, user_id, status, has_workspace, purpose,
	start_date, end_date, created_at`

func (r *bookingRepo) scanBooking(ctx context.Context, query, id string) (*model.Booking, error) {
	b := &model.Booking{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID, &b.BookingNumber, &b.UserID, &b.Status, &b.HasWorkspace, &b.Purpose,
		&b.StartDate, &b.EndDate, &b.CreatedAt,
	)
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения бронирования")
	}
	return b, nil
}

func (r *bookingRepo) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	return r.scanBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

func (r *bookingRepo) LockForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	return r.scanBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *bookingRepo) GetUser(ctx context.Context, userID string) (*model.User, error) {
	query := `
		SELECT id, full_name, email, phone, institution, user_type
		FROM users
		WHERE id = $1`

	u := &model.User{}
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.FullName, &u.Email, &u.Phone, &u.Institution, &u.UserType,
	)
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения пользователя")
	}
	return u, nil
}

func (r *bookingRepo) ListItems(ctx context.Context, bookingID string) ([]model.LineItem, error) {
	query := `
		SELECT id, booking_id, service_name, sample_type, quantity, unit,
			unit_price, total_price, position
		FROM booking_items
		WHERE booking_id = $1
		ORDER BY position, id`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения позиций бронирования: %w", err)
	}
	defer rows.Close()

	var result []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(
			&it.ID, &it.BookingID, &it.ServiceName, &it.SampleType, &it.Quantity, &it.Unit,
			&it.UnitPrice, &it.TotalPrice, &it.Position,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования позиции: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

func (r *bookingRepo) ListReservations(ctx context.Context, bookingID string) ([]model.WorkspaceReservation, error) {
	query := `
		SELECT wr.id, wr.booking_id, wr.workspace_id, w.name, wr.start_date, wr.end_date,
			wr.billing_unit, wr.unit_rate
		FROM workspace_reservations wr
		JOIN workspaces w ON w.id = wr.workspace_id
		WHERE wr.booking_id = $1
		ORDER BY wr.start_date, wr.id`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аренд рабочих мест: %w", err)
	}
	defer rows.Close()

	var result []model.WorkspaceReservation
	index := make(map[string]int)
	for rows.Next() {
		var (
			wr   model.WorkspaceReservation
			rate decimal.NullDecimal
		)
		if err := rows.Scan(
			&wr.ID, &wr.BookingID, &wr.WorkspaceID, &wr.WorkspaceName, &wr.StartDate, &wr.EndDate,
			&wr.BillingUnit, &rate,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования аренды: %w", err)
		}
		if rate.Valid {
			v := rate.Decimal
			wr.UnitRate = &v
		}
		index[wr.ID] = len(result)
		result = append(result, wr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return result, nil
	}

	addOnQuery := `
		SELECT a.id, a.reservation_id, a.name, a.quantity, a.unit_price, a.total_price
		FROM workspace_addons a
		JOIN workspace_reservations wr ON wr.id = a.reservation_id
		WHERE wr.booking_id = $1
		ORDER BY a.name, a.id`

	addOnRows, err := r.db.Query(ctx, addOnQuery, bookingID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения дополнительных услуг: %w", err)
	}
	defer addOnRows.Close()

	for addOnRows.Next() {
		var a model.WorkspaceAddOn
		if err := addOnRows.Scan(
			&a.ID, &a.ReservationID, &a.Name, &a.Quantity, &a.UnitPrice, &a.TotalPrice,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования дополнительной услуги: %w", err)
		}
		if i, ok := index[a.ReservationID]; ok {
			result[i].AddOns = append(result[i].AddOns, a)
		}
	}
	return result, addOnRows.Err()
}

func (r *bookingRepo) ListPricing(ctx context.Context, workspaceIDs []string, userType string) ([]model.WorkspacePricing, error) {
	if len(workspaceIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, workspace_id, user_type, billing_unit, rate, valid_from, valid_to
		FROM workspace_pricing
		WHERE workspace_id = ANY($1::uuid[]) AND user_type = $2
		ORDER BY valid_from DESC`

	rows, err := r.db.Query(ctx, query, workspaceIDs, userType)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения прайса рабочих мест: %w", err)
	}
	defer rows.Close()

	var result []model.WorkspacePricing
	for rows.Next() {
		var p model.WorkspacePricing
		if err := rows.Scan(
			&p.ID, &p.WorkspaceID, &p.UserType, &p.BillingUnit, &p.Rate, &p.ValidFrom, &p.ValidTo,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования прайса: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

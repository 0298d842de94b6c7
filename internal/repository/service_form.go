package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// ServiceFormRepository - операции с таблицей service_forms.
type ServiceFormRepository interface {
	// Create создаёт запись формы. Дубликат номера или второй актуальной формы → ErrConflict.
	Create(ctx context.Context, f *model.ServiceForm) error
	// GetByID возвращает форму по UUID.
	GetByID(ctx context.Context, id string) (*model.ServiceForm, error)
	// GetCurrentByBooking возвращает актуальную (generated) форму бронирования.
	GetCurrentByBooking(ctx context.Context, bookingID string) (*model.ServiceForm, error)
	// CountByBooking возвращает число форм бронирования в любом статусе.
	CountByBooking(ctx context.Context, bookingID string) (int, error)
	// ListNumbersWithPrefix возвращает номера форм, начинающиеся с prefix.
	ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)
	// Supersede помечает форму заменённой и очищает указатели на файлы.
	Supersede(ctx context.Context, id string) error
	// SetUnsignedFiles проставляет указатели на неподписанные документы.
	SetUnsignedFiles(ctx context.Context, id, serviceFileID string, workspaceFileID *string) error
	// SetWorkspaceFile проставляет соглашение о рабочем месте актуальной форме,
	// у которой его ещё нет. Иначе возвращает ErrConflict.
	SetWorkspaceFile(ctx context.Context, id, fileID string) error
}

type serviceFormRepo struct {
	db DBTX
}

// NewServiceFormRepository создаёт репозиторий форм.
func NewServiceFormRepository(db DBTX) ServiceFormRepository {
	return &serviceFormRepo{db: db}
}

const serviceFormColumns = `id, booking_id, form_number, version, subtotal, total, status,
	valid_until, unsigned_form_file_id, signed_form_file_id, workspace_form_file_id,
	signed_workspace_form_file_id, generated_by, created_at, updated_at`

func scanServiceForm(row interface{ Scan(...any) error }) (*model.ServiceForm, error) {
	f := &model.ServiceForm{}
	err := row.Scan(
		&f.ID, &f.BookingID, &f.FormNumber, &f.Version, &f.Subtotal, &f.Total, &f.Status,
		&f.ValidUntil, &f.UnsignedFormFileID, &f.SignedFormFileID, &f.WorkspaceFormFileID,
		&f.SignedWorkspaceFormFileID, &f.GeneratedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	return f, err
}

func (r *serviceFormRepo) Create(ctx context.Context, f *model.ServiceForm) error {
	query := `
		INSERT INTO service_forms (id, booking_id, form_number, version, subtotal, total,
			status, valid_until, unsigned_form_file_id, workspace_form_file_id, generated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		f.ID, f.BookingID, f.FormNumber, f.Version, f.Subtotal, f.Total,
		f.Status, f.ValidUntil, f.UnsignedFormFileID, f.WorkspaceFormFileID, f.GeneratedBy,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: форма %s или актуальная форма бронирования уже существует", ErrConflict, f.FormNumber)
		}
		return fmt.Errorf("ошибка создания формы: %w", err)
	}
	return nil
}

func (r *serviceFormRepo) GetByID(ctx context.Context, id string) (*model.ServiceForm, error) {
	f, err := scanServiceForm(r.db.QueryRow(ctx,
		`SELECT `+serviceFormColumns+` FROM service_forms WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения формы")
	}
	return f, nil
}

func (r *serviceFormRepo) GetCurrentByBooking(ctx context.Context, bookingID string) (*model.ServiceForm, error) {
	f, err := scanServiceForm(r.db.QueryRow(ctx,
		`SELECT `+serviceFormColumns+` FROM service_forms
		WHERE booking_id = $1 AND status = 'generated'`, bookingID))
	if err != nil {
		return nil, notFoundOr(err, "ошибка получения актуальной формы")
	}
	return f, nil
}

func (r *serviceFormRepo) CountByBooking(ctx context.Context, bookingID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM service_forms WHERE booking_id = $1`, bookingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта форм: %w", err)
	}
	return n, nil
}

func (r *serviceFormRepo) ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	// starts_with не интерпретирует % и _ в префиксе
	rows, err := r.db.Query(ctx,
		`SELECT form_number FROM service_forms WHERE starts_with(form_number, $1)`, prefix)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения номеров форм: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования номера формы: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *serviceFormRepo) Supersede(ctx context.Context, id string) error {
	query := `
		UPDATE service_forms
		SET status = 'superseded',
			unsigned_form_file_id = NULL,
			signed_form_file_id = NULL,
			workspace_form_file_id = NULL,
			signed_workspace_form_file_id = NULL,
			updated_at = now()
		WHERE id = $1 AND status = 'generated'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка замены формы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *serviceFormRepo) SetUnsignedFiles(ctx context.Context, id, serviceFileID string, workspaceFileID *string) error {
	query := `
		UPDATE service_forms
		SET unsigned_form_file_id = $2, workspace_form_file_id = $3, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, serviceFileID, workspaceFileID)
	if err != nil {
		return fmt.Errorf("ошибка обновления указателей формы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *serviceFormRepo) SetWorkspaceFile(ctx context.Context, id, fileID string) error {
	query := `
		UPDATE service_forms
		SET workspace_form_file_id = $2, updated_at = now()
		WHERE id = $1 AND status = 'generated' AND workspace_form_file_id IS NULL`

	tag, err := r.db.Exec(ctx, query, id, fileID)
	if err != nil {
		return fmt.Errorf("ошибка обновления соглашения формы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: форма %s не актуальна или уже имеет соглашение", ErrConflict, id)
	}
	return nil
}

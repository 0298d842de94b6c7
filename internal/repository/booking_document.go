package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// BookingDocumentRepository - операции с таблицей booking_documents.
type BookingDocumentRepository interface {
	// Create создаёт указатель. Повтор пары (booking, type) → ErrConflict.
	Create(ctx context.Context, d *model.BookingDocument) error
	// ListByBooking возвращает документы бронирования вместе с метаданными файлов.
	// Пустой types - все типы.
	ListByBooking(ctx context.Context, bookingID string, types []model.DocumentType) ([]*model.BookingDocument, error)
	// DeleteByIDs удаляет указатели и возвращает число удалённых.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

type bookingDocumentRepo struct {
	db DBTX
}

// NewBookingDocumentRepository создаёт репозиторий документов бронирования.
func NewBookingDocumentRepository(db DBTX) BookingDocumentRepository {
	return &bookingDocumentRepo{db: db}
}

func (r *bookingDocumentRepo) Create(ctx context.Context, d *model.BookingDocument) error {
	query := `
		INSERT INTO booking_documents (id, booking_id, document_type, file_id, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.BookingID, d.DocumentType, d.FileID, d.CreatedBy,
	).Scan(&d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: документ %s бронирования %s уже существует",
				ErrConflict, d.DocumentType, d.BookingID)
		}
		return fmt.Errorf("ошибка создания документа: %w", err)
	}
	return nil
}

func (r *bookingDocumentRepo) ListByBooking(ctx context.Context, bookingID string, types []model.DocumentType) ([]*model.BookingDocument, error) {
	query := `
		SELECT d.id, d.booking_id, d.document_type, d.file_id, d.created_by, d.created_at,
			f.id, f.storage_key, f.url, f.content_type, f.file_name, f.size, f.checksum, f.uploaded_by, f.created_at
		FROM booking_documents d
		JOIN file_blobs f ON f.id = d.file_id
		WHERE d.booking_id = $1
			AND (cardinality($2::text[]) = 0 OR d.document_type = ANY($2::text[]))
		ORDER BY d.document_type`

	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	rows, err := r.db.Query(ctx, query, bookingID, typeNames)
	if err != nil {
		if isInvalidText(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения документов бронирования: %w", err)
	}
	defer rows.Close()

	var result []*model.BookingDocument
	for rows.Next() {
		d := &model.BookingDocument{File: &model.FileBlob{}}
		if err := rows.Scan(
			&d.ID, &d.BookingID, &d.DocumentType, &d.FileID, &d.CreatedBy, &d.CreatedAt,
			&d.File.ID, &d.File.StorageKey, &d.File.URL, &d.File.ContentType, &d.File.FileName,
			&d.File.Size, &d.File.Checksum, &d.File.UploadedBy, &d.File.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *bookingDocumentRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM booking_documents WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления документов: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// FileBlobRepository - операции с таблицей file_blobs.
type FileBlobRepository interface {
	// Create регистрирует метаданные загруженного объекта.
	Create(ctx context.Context, b *model.FileBlob) error
	// DeleteByIDs удаляет записи и возвращает число удалённых.
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

type fileBlobRepo struct {
	db DBTX
}

// NewFileBlobRepository создаёт репозиторий метаданных файлов.
func NewFileBlobRepository(db DBTX) FileBlobRepository {
	return &fileBlobRepo{db: db}
}

func (r *fileBlobRepo) Create(ctx context.Context, b *model.FileBlob) error {
	query := `
		INSERT INTO file_blobs (id, storage_key, url, content_type, file_name, size, checksum, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		b.ID, b.StorageKey, b.URL, b.ContentType, b.FileName, b.Size, b.Checksum, b.UploadedBy,
	).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: объект %s уже зарегистрирован", ErrConflict, b.StorageKey)
		}
		return fmt.Errorf("ошибка регистрации файла: %w", err)
	}
	return nil
}

func (r *fileBlobRepo) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM file_blobs WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления файлов: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

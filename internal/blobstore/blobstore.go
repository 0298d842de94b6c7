// Пакет blobstore - долговременное хранилище сгенерированных документов.
// Две реализации: Storage Element (HTTP API) и каталог на локальном диске.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound - объект отсутствует в хранилище.
var ErrNotFound = errors.New("объект не найден")

// UploadRequest - параметры загрузки объекта.
type UploadRequest struct {
	Data        []byte
	FileName    string
	ContentType string
	UploadedBy  string
	// IdempotencyKey - bookingID/number/documentType, сохраняется как описание объекта
	IdempotencyKey string
}

// Object - загруженный объект.
type Object struct {
	// Key - ключ объекта в хранилище (UUID в SE, имя файла в local)
	Key      string
	URL      string
	Size     int64
	Checksum string
}

// Store - хранилище объектов.
type Store interface {
	// Upload сохраняет объект и возвращает его ключ и URL.
	Upload(ctx context.Context, req UploadRequest) (*Object, error)
	// Delete удаляет объекты. Отсутствующий ключ ошибкой не считается.
	// Ошибки по отдельным ключам объединяются через errors.Join.
	Delete(ctx context.Context, keys []string) error
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType - тип документа бронирования.
type DocumentType string

const (
	DocUnsignedServiceForm   DocumentType = "unsigned_service_form"
	DocUnsignedWorkspaceForm DocumentType = "unsigned_workspace_form"
	DocSignedServiceForm     DocumentType = "signed_service_form"
	DocSignedWorkspaceForm   DocumentType = "signed_workspace_form"
	DocPaymentReceipt        DocumentType = "payment_receipt"
	DocSampleResult          DocumentType = "sample_result"
)

// RegeneratedDocumentTypes - типы, которые заменяются при перегенерации.
// Подписанные версии тоже снимаются: подписывать нужно новый документ.
var RegeneratedDocumentTypes = []DocumentType{
	DocUnsignedServiceForm,
	DocUnsignedWorkspaceForm,
	DocSignedServiceForm,
	DocSignedWorkspaceForm,
}

// ServiceFormStatus - статус записи формы.
type ServiceFormStatus string

const (
	// FormStatusGenerated - актуальная форма бронирования
	FormStatusGenerated ServiceFormStatus = "generated"
	// FormStatusSuperseded - заменена перегенерацией, указатели очищены
	FormStatusSuperseded ServiceFormStatus = "superseded"
)

// ServiceForm - одна генерация комплекта документов бронирования.
// Перегенерация создаёт новую запись; прежняя остаётся для истории номеров.
type ServiceForm struct {
	ID        string
	BookingID string
	// FormNumber - PREFIX-YEAR-NNNNN, при перегенерации с суффиксом -vN
	FormNumber string
	// Version - 0 для первичной генерации, N для -vN
	Version  int
	Subtotal decimal.Decimal
	Total    decimal.Decimal
	Status   ServiceFormStatus
	// ValidUntil - срок действия формы
	ValidUntil time.Time

	UnsignedFormFileID        *string
	SignedFormFileID          *string
	WorkspaceFormFileID       *string
	SignedWorkspaceFormFileID *string

	GeneratedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileBlob - зеркало метаданных объекта в хранилище.
type FileBlob struct {
	ID          string
	StorageKey  string
	URL         string
	ContentType string
	FileName    string
	Size        int64
	// Checksum - SHA-256 содержимого в hex, как его вернуло хранилище.
	Checksum   string
	UploadedBy string
	CreatedAt  time.Time
}

// BookingDocument - типизированный указатель бронирования на файл.
// Для пары (booking, type) существует не более одной записи.
type BookingDocument struct {
	ID           string
	BookingID    string
	DocumentType DocumentType
	FileID       string
	CreatedBy    string
	CreatedAt    time.Time

	// File заполняется при чтении вместе с file_blobs
	File *FileBlob
}

// AuditAction - тип события журнала аудита.
type AuditAction string

const (
	AuditFormGenerated   AuditAction = "service_form_generated"
	AuditFormRegenerated AuditAction = "service_form_regenerated"
	// AuditWorkingAreaAttached - соглашение о рабочем месте сформировано повторно
	AuditWorkingAreaAttached AuditAction = "working_area_agreement_attached"
)

// AuditLog - запись журнала аудита (append-only).
type AuditLog struct {
	ID        string
	Action    AuditAction
	Actor     string
	BookingID string
	EntityID  string
	OldNumber *string
	NewNumber string
	CreatedAt time.Time
}

// PendingDeletion - ключ хранилища, ожидающий удаления после коммита.
type PendingDeletion struct {
	ID         string
	StorageKey string
	Reason     string
	Attempts   int
	LastError  *string
	CreatedAt  time.Time
}

// Notification - in-app уведомление пользователя портала.
type Notification struct {
	ID        string
	UserID    string
	Kind      string
	Title     string
	Message   string
	BookingID *string
	Link      *string
	IsRead    bool
	CreatedAt time.Time
}

// Пакет model - доменные модели Document Module.
// Бронирования и прайсинг читаются из общей БД портала (CRUD вне модуля),
// документы, файлы и журнал аудита принадлежат модулю.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus - статус бронирования в портале.
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusApproved  BookingStatus = "approved"
	BookingStatusRejected  BookingStatus = "rejected"
	BookingStatusCancelled BookingStatus = "cancelled"
	BookingStatusCompleted BookingStatus = "completed"
)

// Booking - бронирование услуг лаборатории.
type Booking struct {
	// ID - UUID бронирования
	ID string
	// BookingNumber - человекочитаемый номер бронирования
	BookingNumber string
	// UserID - владелец бронирования
	UserID string
	// Status - текущий статус (генерация документов допустима только из approved)
	Status BookingStatus
	// HasWorkspace - бронирование включает аренду рабочего места
	HasWorkspace bool
	// Purpose - цель исследования (печатается в форме)
	Purpose string
	// StartDate, EndDate - период работ
	StartDate time.Time
	EndDate   time.Time
	CreatedAt time.Time
}

// User - владелец бронирования.
type User struct {
	ID          string
	FullName    string
	Email       string
	Phone       string
	Institution string
	// UserType - категория пользователя для прайсинга (internal, external, industry)
	UserType string
}

// LineItem - позиция аналитической услуги в бронировании.
// TotalPrice фиксируется при бронировании и не пересчитывается.
type LineItem struct {
	ID          string
	BookingID   string
	ServiceName string
	SampleType  string
	Quantity    int
	Unit        string
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	Position    int
}

// WorkspaceReservation - аренда рабочего места в рамках бронирования.
// BillingUnit и UnitRate заполняются при бронировании; у старых записей могут отсутствовать.
type WorkspaceReservation struct {
	ID            string
	BookingID     string
	WorkspaceID   string
	WorkspaceName string
	StartDate     time.Time
	EndDate       time.Time
	BillingUnit   *string
	UnitRate      *decimal.Decimal
	AddOns        []WorkspaceAddOn
}

// WorkspaceAddOn - дополнительная услуга к аренде рабочего места.
type WorkspaceAddOn struct {
	ID            string
	ReservationID string
	Name          string
	Quantity      int
	UnitPrice     decimal.Decimal
	TotalPrice    decimal.Decimal
}

// WorkspacePricing - строка прайса рабочего места для категории пользователей.
// ValidTo == nil - тариф действует бессрочно.
type WorkspacePricing struct {
	ID          string
	WorkspaceID string
	UserType    string
	BillingUnit string
	Rate        decimal.Decimal
	ValidFrom   time.Time
	ValidTo     *time.Time
}

// Covers проверяет, что тариф действует на весь период [from, to].
// Границы тарифа - включительные календарные даты (UTC): тариф с valid_to
// в полночь последнего дня аренды покрывает весь этот день.
func (p WorkspacePricing) Covers(from, to time.Time) bool {
	if civilDate(from).Before(civilDate(p.ValidFrom)) {
		return false
	}
	if p.ValidTo != nil && civilDate(to).After(civilDate(*p.ValidTo)) {
		return false
	}
	return true
}

// civilDate отбрасывает время суток.
func civilDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

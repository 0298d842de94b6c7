// Пакет notify - уведомления о готовности документов бронирования.
// Доставка best-effort: ошибки возвращаются вызывающему, который их только логирует.
package notify

import (
	"context"
	"errors"
	"time"
)

// EventFormReady - вид события «документы сформированы».
const EventFormReady = "service_form_ready"

// Event - событие о сформированных документах.
type Event struct {
	UserID     string    `json:"user_id"`
	BookingID  string    `json:"booking_id"`
	FormID     string    `json:"form_id"`
	FormNumber string    `json:"form_number"`
	ValidUntil time.Time `json:"valid_until"`
	// RequiresWorkingAreaAgreement - к форме прилагается соглашение о рабочем месте
	RequiresWorkingAreaAgreement bool `json:"requires_working_area_agreement"`
	Regenerated                  bool `json:"regenerated"`
	// WorkingAreaAttached - соглашение сформировано к уже выпущенной форме
	WorkingAreaAttached bool `json:"working_area_attached,omitempty"`
}

// Dispatcher - получатель событий.
type Dispatcher interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi рассылает событие всем получателям и объединяет ошибки.
type Multi []Dispatcher

// Notify вызывает всех получателей; сбой одного не прерывает остальных.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, d := range m {
		if err := d.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop - получатель, игнорирующий события.
type Nop struct{}

// Notify ничего не делает.
func (Nop) Notify(context.Context, Event) error { return nil }

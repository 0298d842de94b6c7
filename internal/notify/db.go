package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/repository"
)

// DBDispatcher создаёт in-app уведомление владельцу бронирования.
type DBDispatcher struct {
	repo repository.NotificationRepository
}

// NewDBDispatcher создаёт получателя на базе таблицы notifications.
func NewDBDispatcher(repo repository.NotificationRepository) *DBDispatcher {
	return &DBDispatcher{repo: repo}
}

// Notify записывает уведомление.
func (d *DBDispatcher) Notify(ctx context.Context, ev Event) error {
	title := "Бланк заказа сформирован"
	if ev.Regenerated {
		title = "Бланк заказа обновлён"
	}
	message := fmt.Sprintf("Бланк %s действителен до %s. Подпишите и загрузите его в портал.",
		ev.FormNumber, ev.ValidUntil.Format("02.01.2006"))
	if ev.RequiresWorkingAreaAgreement {
		message += " Также требуется подписать соглашение об использовании рабочего места."
	}
	if ev.WorkingAreaAttached {
		title = "Соглашение о рабочем месте сформировано"
		message = fmt.Sprintf("К бланку %s добавлено соглашение об использовании рабочего места. Подпишите и загрузите его в портал.",
			ev.FormNumber)
	}

	bookingID := ev.BookingID
	link := "/bookings/" + ev.BookingID + "/documents"
	n := &model.Notification{
		ID:        uuid.New().String(),
		UserID:    ev.UserID,
		Kind:      EventFormReady,
		Title:     title,
		Message:   message,
		BookingID: &bookingID,
		Link:      &link,
	}
	if err := d.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("in-app уведомление: %w", err)
	}
	return nil
}

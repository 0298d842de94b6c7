// Пакет composer - сборка структурированных данных для рендерера документов.
// Чистая трансформация: все чтения из БД выполняет вызывающий код.
package composer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
)

// ErrComposition - данные бронирования не позволяют собрать документы.
var ErrComposition = errors.New("ошибка сборки документа")

// CompositionError - ошибка сборки с идентификаторами для оператора.
type CompositionError struct {
	BookingID string
	Message   string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("бронирование %s: %s", e.BookingID, e.Message)
}

// Unwrap позволяет проверять ошибку через errors.Is(err, ErrComposition).
func (e *CompositionError) Unwrap() error {
	return ErrComposition
}

// Единицы тарификации рабочего места.
const (
	UnitHour  = "hour"
	UnitDay   = "day"
	UnitWeek  = "week"
	UnitMonth = "month"
)

// Виды строк формы.
const (
	LineAnalysis  = "analysis"
	LineWorkspace = "workspace"
	LineAddOn     = "workspace_addon"
)

// Input - исходные данные для сборки.
type Input struct {
	Booking      model.Booking
	User         model.User
	Items        []model.LineItem
	Reservations []model.WorkspaceReservation
	// Pricing - строки прайса для резервного поиска тарифа
	Pricing    []model.WorkspacePricing
	Facility   model.FacilityConfig
	FormNumber string
	IssuedAt   time.Time
	ValidUntil time.Time
}

// Line - строка формы.
type Line struct {
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Detail      string          `json:"detail,omitempty"`
	Quantity    int             `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Customer - заказчик в шапке документа.
type Customer struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Institution string `json:"institution,omitempty"`
	UserType    string `json:"user_type"`
}

// BookingSummary - сведения о бронировании в документе.
type BookingSummary struct {
	ID        string    `json:"id"`
	Number    string    `json:"number"`
	Purpose   string    `json:"purpose,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// ServiceFormInput - данные формы услуг (TOR).
type ServiceFormInput struct {
	FormNumber string               `json:"form_number"`
	IssuedAt   time.Time            `json:"issued_at"`
	ValidUntil time.Time            `json:"valid_until"`
	Facility   model.FacilityConfig `json:"facility"`
	Customer   Customer             `json:"customer"`
	Booking    BookingSummary       `json:"booking"`
	Lines      []Line               `json:"lines"`
	Subtotal   decimal.Decimal      `json:"subtotal"`
	Total      decimal.Decimal      `json:"total"`
}

// WorkspaceTerm - условия аренды одного рабочего места.
type WorkspaceTerm struct {
	WorkspaceName string          `json:"workspace_name"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	BillingUnit   string          `json:"billing_unit"`
	Units         int             `json:"units"`
	Rate          decimal.Decimal `json:"rate"`
	Total         decimal.Decimal `json:"total"`
	AddOns        []Line          `json:"add_ons,omitempty"`
}

// WorkingAreaInput - данные соглашения о рабочем месте.
type WorkingAreaInput struct {
	FormNumber string               `json:"form_number"`
	IssuedAt   time.Time            `json:"issued_at"`
	Facility   model.FacilityConfig `json:"facility"`
	Customer   Customer             `json:"customer"`
	Booking    BookingSummary       `json:"booking"`
	Workspaces []WorkspaceTerm      `json:"workspaces"`
}

// Output - результат сборки.
type Output struct {
	ServiceForm ServiceFormInput
	// WorkingArea == nil, если бронирование без рабочего места
	WorkingArea *WorkingAreaInput
	Subtotal    decimal.Decimal
	Total       decimal.Decimal
}

// RequiresWorkingArea сообщает, нужен ли документ соглашения.
func (o *Output) RequiresWorkingArea() bool {
	return o.WorkingArea != nil
}

// Compose собирает данные всех требуемых документов.
// Ошибки возвращаются до любого рендеринга: вызывающий код не должен
// обращаться к рендереру, если Compose вернул ошибку.
func Compose(in Input) (*Output, error) {
	bookingID := in.Booking.ID

	if in.Booking.HasWorkspace && len(in.Reservations) == 0 {
		return nil, &CompositionError{BookingID: bookingID,
			Message: "бронирование требует соглашения о рабочем месте, но бронь рабочего места отсутствует"}
	}
	if !in.Booking.HasWorkspace && len(in.Reservations) > 0 {
		return nil, &CompositionError{BookingID: bookingID,
			Message: fmt.Sprintf("бронирование без рабочего места содержит %d брон(и) рабочего места", len(in.Reservations))}
	}

	items := make([]model.LineItem, len(in.Items))
	copy(items, in.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Position < items[j].Position })

	lines := make([]Line, 0, len(items)+len(in.Reservations))
	subtotal := decimal.Zero

	for _, it := range items {
		if it.TotalPrice.IsNegative() {
			return nil, &CompositionError{BookingID: bookingID,
				Message: fmt.Sprintf("позиция %s (%s): отрицательная сумма %s", it.ID, it.ServiceName, it.TotalPrice)}
		}
		lines = append(lines, Line{
			Kind:        LineAnalysis,
			Description: it.ServiceName,
			Detail:      it.SampleType,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			UnitPrice:   it.UnitPrice,
			Total:       it.TotalPrice,
		})
		subtotal = subtotal.Add(it.TotalPrice)
	}

	var terms []WorkspaceTerm
	for _, r := range in.Reservations {
		unit, rate, err := resolvePricing(in, r)
		if err != nil {
			return nil, err
		}
		units, err := billableUnits(unit, r.StartDate, r.EndDate)
		if err != nil {
			return nil, &CompositionError{BookingID: bookingID,
				Message: fmt.Sprintf("бронь рабочего места %s: %s", r.ID, err.Error())}
		}
		total := rate.Mul(decimal.NewFromInt(int64(units)))

		lines = append(lines, Line{
			Kind:        LineWorkspace,
			Description: r.WorkspaceName,
			Detail:      formatPeriod(r.StartDate, r.EndDate),
			Quantity:    units,
			Unit:        unit,
			UnitPrice:   rate,
			Total:       total,
		})
		subtotal = subtotal.Add(total)

		term := WorkspaceTerm{
			WorkspaceName: r.WorkspaceName,
			StartDate:     r.StartDate,
			EndDate:       r.EndDate,
			BillingUnit:   unit,
			Units:         units,
			Rate:          rate,
			Total:         total,
		}

		for _, a := range r.AddOns {
			if a.TotalPrice.IsNegative() {
				return nil, &CompositionError{BookingID: bookingID,
					Message: fmt.Sprintf("доп. услуга %s (%s): отрицательная сумма %s", a.ID, a.Name, a.TotalPrice)}
			}
			addOn := Line{
				Kind:        LineAddOn,
				Description: a.Name,
				Detail:      r.WorkspaceName,
				Quantity:    a.Quantity,
				Unit:        "item",
				UnitPrice:   a.UnitPrice,
				Total:       a.TotalPrice,
			}
			lines = append(lines, addOn)
			term.AddOns = append(term.AddOns, addOn)
			subtotal = subtotal.Add(a.TotalPrice)
		}
		terms = append(terms, term)
	}

	customer := Customer{
		Name:        in.User.FullName,
		Email:       in.User.Email,
		Phone:       in.User.Phone,
		Institution: in.User.Institution,
		UserType:    in.User.UserType,
	}
	summary := BookingSummary{
		ID:        in.Booking.ID,
		Number:    in.Booking.BookingNumber,
		Purpose:   in.Booking.Purpose,
		StartDate: in.Booking.StartDate,
		EndDate:   in.Booking.EndDate,
	}

	out := &Output{
		ServiceForm: ServiceFormInput{
			FormNumber: in.FormNumber,
			IssuedAt:   in.IssuedAt,
			ValidUntil: in.ValidUntil,
			Facility:   in.Facility,
			Customer:   customer,
			Booking:    summary,
			Lines:      lines,
			Subtotal:   subtotal,
			Total:      subtotal,
		},
		Subtotal: subtotal,
		Total:    subtotal,
	}

	if in.Booking.HasWorkspace {
		out.WorkingArea = &WorkingAreaInput{
			FormNumber: in.FormNumber,
			IssuedAt:   in.IssuedAt,
			Facility:   in.Facility,
			Customer:   customer,
			Booking:    summary,
			Workspaces: terms,
		}
	}

	return out, nil
}

// resolvePricing определяет единицу и ставку для брони рабочего места.
// Приоритет - значения, сохранённые при бронировании; прайс - только для старых броней.
func resolvePricing(in Input, r model.WorkspaceReservation) (string, decimal.Decimal, error) {
	if r.BillingUnit != nil && *r.BillingUnit != "" && r.UnitRate != nil {
		return *r.BillingUnit, *r.UnitRate, nil
	}

	var best *model.WorkspacePricing
	for i := range in.Pricing {
		p := &in.Pricing[i]
		if p.WorkspaceID != r.WorkspaceID || p.UserType != in.User.UserType {
			continue
		}
		if !p.Covers(r.StartDate, r.EndDate) {
			continue
		}
		if best == nil || p.ValidFrom.After(best.ValidFrom) {
			best = p
		}
	}

	if best == nil {
		return "", decimal.Zero, &CompositionError{
			BookingID: in.Booking.ID,
			Message: fmt.Sprintf("нет тарифа для рабочего места %s (%s), бронь %s, период %s, тип пользователя %q",
				r.WorkspaceName, r.WorkspaceID, r.ID, formatPeriod(r.StartDate, r.EndDate), in.User.UserType),
		}
	}
	return best.BillingUnit, best.Rate, nil
}

// billableUnits считает количество единиц тарификации за период.
// Дни считаются включительно, неполные недели и месяцы округляются вверх.
func billableUnits(unit string, start, end time.Time) (int, error) {
	if end.Before(start) {
		return 0, fmt.Errorf("дата окончания %s раньше даты начала %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	days := int(truncateDay(end).Sub(truncateDay(start)).Hours()/24) + 1

	switch unit {
	case UnitHour:
		hours := int(math.Ceil(end.Sub(start).Hours()))
		if hours < 1 {
			hours = 1
		}
		return hours, nil
	case UnitDay:
		return days, nil
	case UnitWeek:
		return (days + 6) / 7, nil
	case UnitMonth:
		return (days + 29) / 30, nil
	default:
		return 0, fmt.Errorf("неизвестная единица тарификации %q", unit)
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatPeriod(start, end time.Time) string {
	return start.Format(time.DateOnly) + " - " + end.Format(time.DateOnly)
}

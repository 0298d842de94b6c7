// documents.go - генерация и перегенерация комплекта документов бронирования.
//
// Попытка проходит этапы composing → producing → committing → cleaning-up →
// notifying → done (pipeline.Attempt). До committing попытка не пишет в БД,
// внутри транзакции нет внешних вызовов. Старые объекты хранилища удаляются
// только после коммита, незавершённые удаления дочищает CleanupService.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/labbooking/document-module/internal/blobstore"
	"github.com/bigkaa/labbooking/document-module/internal/composer"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/domain/pipeline"
	"github.com/bigkaa/labbooking/document-module/internal/notify"
	"github.com/bigkaa/labbooking/document-module/internal/numbering"
	"github.com/bigkaa/labbooking/document-module/internal/repository"
)

// Операции попытки (метка метрик).
const (
	OperationGenerate         = "generate"
	OperationRegenerate       = "regenerate"
	OperationRetryWorkingArea = "retry_working_area"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_generation_attempts_total",
		Help: "Количество попыток генерации по операции и итоговому состоянию",
	}, []string{"operation", "state"})

	attemptDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dm_generation_duration_seconds",
		Help:    "Длительность попытки генерации в секундах",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})
)

// Transactor выполняет fn в транзакции с привязанными к ней репозиториями.
type Transactor interface {
	Transact(ctx context.Context, fn func(repos *repository.Repos) error) error
}

// FacilityProvider - источник конфигурации лаборатории.
type FacilityProvider interface {
	GetEffectiveConfig(ctx context.Context) (*model.FacilityConfig, error)
}

// Producer формирует документы попытки.
type Producer interface {
	Produce(ctx context.Context, req ProduceRequest) (*ProduceResult, error)
	ProduceWorkingArea(ctx context.Context, req ProduceRequest) (*Artifact, error)
}

// DocumentServiceConfig - параметры генерации.
type DocumentServiceConfig struct {
	// FormPrefix - префикс номеров форм (SF)
	FormPrefix string
	// FormValidity - срок действия формы от момента генерации
	FormValidity time.Duration
	// StoreTimeout - таймаут удаления старых объектов после коммита
	StoreTimeout time.Duration
	// NotifyTimeout - таймаут отправки уведомления
	NotifyTimeout time.Duration
}

// GenerationResult - результат генерации или перегенерации.
type GenerationResult struct {
	ServiceFormID      string    `json:"serviceFormId"`
	FormNumber         string    `json:"formNumber"`
	ServiceFormURL     string    `json:"serviceFormUrl"`
	WorkingAreaFormURL *string   `json:"workingAreaFormUrl"`
	ValidUntil         time.Time `json:"validUntil"`
	// WorkingAreaUploadFailed - соглашение требовалось, но не сформировано
	WorkingAreaUploadFailed bool   `json:"workingAreaUploadFailed,omitempty"`
	WorkingAreaUploadError  string `json:"workingAreaUploadError,omitempty"`
}

// DocumentService - координатор генерации документов.
type DocumentService struct {
	repos    *repository.Repos
	tx       Transactor
	facility FacilityProvider
	producer Producer
	store    blobstore.Store
	notifier notify.Dispatcher
	cfg      DocumentServiceConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewDocumentService создаёт DocumentService.
// repos работают вне транзакции и используются для чтения и выделения номеров.
func NewDocumentService(
	repos *repository.Repos,
	tx Transactor,
	facility FacilityProvider,
	producer Producer,
	store blobstore.Store,
	notifier notify.Dispatcher,
	cfg DocumentServiceConfig,
	logger *slog.Logger,
) *DocumentService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &DocumentService{
		repos:    repos,
		tx:       tx,
		facility: facility,
		producer: producer,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "documents")),
	}
}

// attemptPlan - входные данные одной попытки.
type attemptPlan struct {
	operation string
	actor     string
	booking   *model.Booking
	// previous - форма, от которой выполняется перегенерация (nil для первичной)
	previous *model.ServiceForm
}

// Generate формирует первый комплект документов одобренного бронирования.
func (s *DocumentService) Generate(ctx context.Context, actor, bookingID string) (*GenerationResult, error) {
	if actor == "" || bookingID == "" {
		return nil, fmt.Errorf("%w: не указан инициатор или бронирование", ErrValidation)
	}

	booking, err := s.repos.Bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if booking.Status != model.BookingStatusApproved {
		return nil, fmt.Errorf("%w: бронирование %s в статусе %s, требуется %s",
			ErrPrecondition, bookingID, booking.Status, model.BookingStatusApproved)
	}

	n, err := s.repos.Forms.CountByBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: для бронирования %s форма уже сформирована", ErrConflict, bookingID)
	}

	return s.execute(ctx, attemptPlan{
		operation: OperationGenerate,
		actor:     actor,
		booking:   booking,
	})
}

// Regenerate формирует новую версию документов на основе формы formID.
// Предыдущая актуальная форма помечается superseded, её документы удаляются.
func (s *DocumentService) Regenerate(ctx context.Context, actor, formID string) (*GenerationResult, error) {
	if actor == "" || formID == "" {
		return nil, fmt.Errorf("%w: не указан инициатор или форма", ErrValidation)
	}

	form, err := s.repos.Forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	booking, err := s.repos.Bookings.GetByID(ctx, form.BookingID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	return s.execute(ctx, attemptPlan{
		operation: OperationRegenerate,
		actor:     actor,
		booking:   booking,
		previous:  form,
	})
}

// ListCurrentDocuments возвращает документы бронирования с метаданными файлов.
func (s *DocumentService) ListCurrentDocuments(ctx context.Context, bookingID string) ([]*model.BookingDocument, error) {
	if _, err := s.repos.Bookings.GetByID(ctx, bookingID); err != nil {
		return nil, mapRepoErr(err)
	}
	docs, err := s.repos.Documents.ListByBooking(ctx, bookingID, nil)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// RetryWorkingArea формирует соглашение о рабочем месте для актуальной формы,
// у которой оно не было сформировано. Номер и срок действия формы не меняются.
func (s *DocumentService) RetryWorkingArea(ctx context.Context, actor, formID string) (*GenerationResult, error) {
	if actor == "" || formID == "" {
		return nil, fmt.Errorf("%w: не указан инициатор или форма", ErrValidation)
	}

	form, err := s.repos.Forms.GetByID(ctx, formID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if err := agreementMissing(form); err != nil {
		return nil, err
	}
	booking, err := s.repos.Bookings.GetByID(ctx, form.BookingID)
	if err != nil {
		return nil, mapRepoErr(err)
	}

	start := time.Now()
	attempt := pipeline.NewAttempt()
	logger := s.logger.With(
		slog.String("operation", OperationRetryWorkingArea),
		slog.String("booking_id", booking.ID),
		slog.String("form_number", form.FormNumber),
		slog.String("actor", actor),
	)
	defer s.finish(logger, OperationRetryWorkingArea, attempt, start)

	out, err := s.compose(ctx, booking, form.CreatedAt.UTC(), form.ValidUntil)
	if err != nil {
		s.advance(logger, attempt, pipeline.StateAborted)
		return nil, err
	}
	if !out.RequiresWorkingArea() {
		s.advance(logger, attempt, pipeline.StateAborted)
		return nil, fmt.Errorf("%w: бронирование %s не требует соглашения о рабочем месте",
			ErrPrecondition, booking.ID)
	}
	stampNumber(out, form.FormNumber)

	s.advance(logger, attempt, pipeline.StateProducing)
	agreement, err := s.producer.ProduceWorkingArea(ctx, ProduceRequest{
		BookingID:   booking.ID,
		FormNumber:  form.FormNumber,
		Actor:       actor,
		ServiceForm: out.ServiceForm,
		WorkingArea: out.WorkingArea,
	})
	if err != nil {
		s.advance(logger, attempt, pipeline.StateAborted)
		logger.Error("Соглашение о рабочем месте не сформировано", slog.String("error", err.Error()))
		return nil, err
	}

	s.advance(logger, attempt, pipeline.StateCommitting)
	err = s.tx.Transact(ctx, func(r *repository.Repos) error {
		if _, err := r.Bookings.LockForUpdate(ctx, booking.ID); err != nil {
			return err
		}
		current, err := r.Forms.GetByID(ctx, form.ID)
		if err != nil {
			return err
		}
		if err := agreementMissing(current); err != nil {
			return err
		}

		fileID, err := attach(ctx, r, booking.ID, actor, agreement)
		if err != nil {
			return err
		}
		if err := r.Forms.SetWorkspaceFile(ctx, form.ID, fileID); err != nil {
			return err
		}
		return r.Audit.Create(ctx, &model.AuditLog{
			ID:        uuid.NewString(),
			Action:    model.AuditWorkingAreaAttached,
			Actor:     actor,
			BookingID: booking.ID,
			EntityID:  form.ID,
			NewNumber: form.FormNumber,
		})
	})
	if err != nil {
		s.advance(logger, attempt, pipeline.StateFailed)
		// Объект мог быть выдан хранилищем повторно по ключу идемпотентности,
		// поэтому он не удаляется
		logger.Error("Транзакция соглашения не выполнена, загруженный объект остался без ссылок",
			slog.String("orphan_key", agreement.Object.Key),
			slog.String("error", err.Error()),
		)
		return nil, mapRepoErr(err)
	}

	s.advance(logger, attempt, pipeline.StateCleaningUp)
	s.advance(logger, attempt, pipeline.StateNotifying)
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, notify.Event{
		UserID:                       booking.UserID,
		BookingID:                    booking.ID,
		FormID:                       form.ID,
		FormNumber:                   form.FormNumber,
		ValidUntil:                   form.ValidUntil,
		RequiresWorkingAreaAgreement: true,
		WorkingAreaAttached:          true,
	}); err != nil {
		logger.Warn("Уведомление не отправлено", slog.String("error", err.Error()))
	}
	s.advance(logger, attempt, pipeline.StateDone)

	serviceFormURL := ""
	docs, err := s.repos.Documents.ListByBooking(ctx, booking.ID, []model.DocumentType{model.DocUnsignedServiceForm})
	if err == nil && len(docs) == 1 && docs[0].File != nil {
		serviceFormURL = docs[0].File.URL
	}
	agreementURL := agreement.Object.URL

	logger.Info("Соглашение о рабочем месте сформировано", slog.String("form_id", form.ID))
	return &GenerationResult{
		ServiceFormID:      form.ID,
		FormNumber:         form.FormNumber,
		ServiceFormURL:     serviceFormURL,
		WorkingAreaFormURL: &agreementURL,
		ValidUntil:         form.ValidUntil,
	}, nil
}

// agreementMissing проверяет, что форма актуальна и ещё без соглашения.
func agreementMissing(form *model.ServiceForm) error {
	if form.Status != model.FormStatusGenerated {
		return fmt.Errorf("%w: форма %s в статусе %s", ErrConflict, form.FormNumber, form.Status)
	}
	if form.WorkspaceFormFileID != nil {
		return fmt.Errorf("%w: у формы %s уже есть соглашение о рабочем месте", ErrConflict, form.FormNumber)
	}
	return nil
}

// execute проводит попытку через все этапы.
func (s *DocumentService) execute(ctx context.Context, plan attemptPlan) (*GenerationResult, error) {
	start := time.Now()
	attempt := pipeline.NewAttempt()
	logger := s.logger.With(
		slog.String("operation", plan.operation),
		slog.String("booking_id", plan.booking.ID),
		slog.String("actor", plan.actor),
	)
	defer s.finish(logger, plan.operation, attempt, start)

	// composing: ошибки сборки возвращаются до обращения к рендереру
	issuedAt := s.now().UTC()
	validUntil := issuedAt.Add(s.cfg.FormValidity)
	out, err := s.compose(ctx, plan.booking, issuedAt, validUntil)
	if err != nil {
		s.advance(logger, attempt, pipeline.StateAborted)
		return nil, err
	}

	number, version, err := s.allocate(ctx, plan.previous, issuedAt)
	if err != nil {
		s.advance(logger, attempt, pipeline.StateAborted)
		return nil, err
	}
	stampNumber(out, number)

	// producing
	s.advance(logger, attempt, pipeline.StateProducing)
	produced, err := s.producer.Produce(ctx, ProduceRequest{
		BookingID:   plan.booking.ID,
		FormNumber:  number,
		Actor:       plan.actor,
		ServiceForm: out.ServiceForm,
		WorkingArea: out.WorkingArea,
	})
	if err != nil {
		s.advance(logger, attempt, pipeline.StateAborted)
		logger.Error("Документы не сформированы",
			slog.String("form_number", number),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	// committing
	s.advance(logger, attempt, pipeline.StateCommitting)
	form, staleKeys, err := s.commit(ctx, plan, out, number, version, validUntil, produced)
	if err != nil {
		s.advance(logger, attempt, pipeline.StateFailed)
		// Объекты не удаляются: при неоднозначной ошибке коммита строки могут существовать
		logger.Error("Транзакция генерации не выполнена, загруженные объекты остались без ссылок",
			slog.String("form_number", number),
			slog.Any("orphan_keys", producedKeys(produced)),
			slog.String("error", err.Error()),
		)
		return nil, mapRepoErr(err)
	}

	// cleaning-up
	s.advance(logger, attempt, pipeline.StateCleaningUp)
	s.deleteStale(ctx, logger, staleKeys)

	// notifying
	s.advance(logger, attempt, pipeline.StateNotifying)
	s.notify(ctx, logger, plan, form, out.RequiresWorkingArea())

	s.advance(logger, attempt, pipeline.StateDone)

	result := &GenerationResult{
		ServiceFormID:  form.ID,
		FormNumber:     form.FormNumber,
		ServiceFormURL: produced.ServiceForm.Object.URL,
		ValidUntil:     form.ValidUntil,
	}
	if produced.WorkingArea != nil {
		u := produced.WorkingArea.Object.URL
		result.WorkingAreaFormURL = &u
	}
	if produced.WorkingAreaErr != nil {
		result.WorkingAreaUploadFailed = true
		result.WorkingAreaUploadError = produced.WorkingAreaErr.Error()
	}

	logger.Info("Документы сформированы",
		slog.String("form_id", form.ID),
		slog.String("form_number", form.FormNumber),
		slog.Bool("working_area", produced.WorkingArea != nil),
		slog.Bool("working_area_failed", result.WorkingAreaUploadFailed),
		slog.Int("stale_objects", len(staleKeys)),
	)
	return result, nil
}

// compose читает данные бронирования и собирает входы рендерера.
func (s *DocumentService) compose(ctx context.Context, booking *model.Booking, issuedAt, validUntil time.Time) (*composer.Output, error) {
	user, err := s.repos.Bookings.GetUser(ctx, booking.UserID)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	items, err := s.repos.Bookings.ListItems(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repos.Bookings.ListReservations(ctx, booking.ID)
	if err != nil {
		return nil, err
	}

	var pricing []model.WorkspacePricing
	if len(reservations) > 0 {
		pricing, err = s.repos.Bookings.ListPricing(ctx, workspaceIDs(reservations), user.UserType)
		if err != nil {
			return nil, err
		}
	}

	facilityCfg, err := s.facility.GetEffectiveConfig(ctx)
	if err != nil {
		return nil, err
	}

	return composer.Compose(composer.Input{
		Booking:      *booking,
		User:         *user,
		Items:        items,
		Reservations: reservations,
		Pricing:      pricing,
		Facility:     *facilityCfg,
		IssuedAt:     issuedAt,
		ValidUntil:   validUntil,
	})
}

// allocate выделяет номер формы. Для перегенерации - следующую версию базового номера.
// Номера выдаёт счётчик в БД; пропуски после неудачных попыток допустимы.
func (s *DocumentService) allocate(ctx context.Context, previous *model.ServiceForm, now time.Time) (string, int, error) {
	if previous == nil {
		year := now.Year()
		yearPrefix := numbering.YearPrefix(s.cfg.FormPrefix, year)
		existing, err := s.repos.Forms.ListNumbersWithPrefix(ctx, yearPrefix+"-")
		if err != nil {
			return "", 0, err
		}
		seq, err := s.repos.Counters.Next(ctx, "form:"+yearPrefix, numbering.MaxSequence(existing, yearPrefix))
		if err != nil {
			return "", 0, err
		}
		return numbering.FormatFormNumber(s.cfg.FormPrefix, year, seq), 0, nil
	}

	base := numbering.BaseNumber(previous.FormNumber)
	existing, err := s.repos.Forms.ListNumbersWithPrefix(ctx, base)
	if err != nil {
		return "", 0, err
	}
	version, err := s.repos.Counters.Next(ctx, "version:"+base, numbering.MaxVersion(existing, base))
	if err != nil {
		return "", 0, err
	}
	return numbering.FormatVersion(base, version), version, nil
}

// commit записывает результат попытки одной транзакцией.
// Возвращает созданную форму и ключи объектов, подлежащих удалению.
func (s *DocumentService) commit(
	ctx context.Context,
	plan attemptPlan,
	out *composer.Output,
	number string,
	version int,
	validUntil time.Time,
	produced *ProduceResult,
) (*model.ServiceForm, []string, error) {
	var (
		form      *model.ServiceForm
		staleKeys []string
	)

	err := s.tx.Transact(ctx, func(r *repository.Repos) error {
		form, staleKeys = nil, nil
		bookingID := plan.booking.ID

		if _, err := r.Bookings.LockForUpdate(ctx, bookingID); err != nil {
			return err
		}

		var oldNumber *string
		if plan.previous == nil {
			n, err := r.Forms.CountByBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: форма для бронирования %s уже сформирована", repository.ErrConflict, bookingID)
			}
		} else {
			current, err := r.Forms.GetCurrentByBooking(ctx, bookingID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				current = nil
			case err != nil:
				return err
			}

			if current != nil {
				if current.Version >= version {
					return fmt.Errorf("%w: актуальная форма %s новее %s",
						repository.ErrConflict, current.FormNumber, number)
				}

				docs, err := r.Documents.ListByBooking(ctx, bookingID, model.RegeneratedDocumentTypes)
				if err != nil {
					return err
				}
				// Сначала снимаем указатели формы, затем удаляем файлы
				if err := r.Forms.Supersede(ctx, current.ID); err != nil {
					return err
				}

				docIDs := make([]string, 0, len(docs))
				blobIDs := make([]string, 0, len(docs))
				for _, d := range docs {
					docIDs = append(docIDs, d.ID)
					blobIDs = append(blobIDs, d.FileID)
					if d.File != nil {
						staleKeys = append(staleKeys, d.File.StorageKey)
					}
				}
				if _, err := r.Documents.DeleteByIDs(ctx, docIDs); err != nil {
					return err
				}
				if _, err := r.Blobs.DeleteByIDs(ctx, blobIDs); err != nil {
					return err
				}
				oldNumber = &current.FormNumber
			}
		}

		form = &model.ServiceForm{
			ID:          uuid.NewString(),
			BookingID:   bookingID,
			FormNumber:  number,
			Version:     version,
			Subtotal:    out.Subtotal,
			Total:       out.Total,
			Status:      model.FormStatusGenerated,
			ValidUntil:  validUntil,
			GeneratedBy: plan.actor,
		}
		if err := r.Forms.Create(ctx, form); err != nil {
			return err
		}

		serviceFileID, err := attach(ctx, r, bookingID, plan.actor, produced.ServiceForm)
		if err != nil {
			return err
		}
		var workspaceFileID *string
		if produced.WorkingArea != nil {
			id, err := attach(ctx, r, bookingID, plan.actor, produced.WorkingArea)
			if err != nil {
				return err
			}
			workspaceFileID = &id
		}
		if err := r.Forms.SetUnsignedFiles(ctx, form.ID, serviceFileID, workspaceFileID); err != nil {
			return err
		}
		form.UnsignedFormFileID = &serviceFileID
		form.WorkspaceFormFileID = workspaceFileID

		action := model.AuditFormGenerated
		if plan.previous != nil {
			action = model.AuditFormRegenerated
		}
		if err := r.Audit.Create(ctx, &model.AuditLog{
			ID:        uuid.NewString(),
			Action:    action,
			Actor:     plan.actor,
			BookingID: bookingID,
			EntityID:  form.ID,
			OldNumber: oldNumber,
			NewNumber: number,
		}); err != nil {
			return err
		}

		if len(staleKeys) > 0 {
			if err := r.Deletions.Enqueue(ctx, staleKeys, "superseded by "+number); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return form, staleKeys, nil
}

// attach регистрирует загруженный объект и ссылку бронирования на него.
func attach(ctx context.Context, r *repository.Repos, bookingID, actor string, a *Artifact) (string, error) {
	blob := &model.FileBlob{
		ID:          uuid.NewString(),
		StorageKey:  a.Object.Key,
		URL:         a.Object.URL,
		ContentType: a.ContentType,
		FileName:    a.FileName,
		Size:        a.Object.Size,
		Checksum:    a.Object.Checksum,
		UploadedBy:  actor,
	}
	if err := r.Blobs.Create(ctx, blob); err != nil {
		return "", err
	}
	if err := r.Documents.Create(ctx, &model.BookingDocument{
		ID:           uuid.NewString(),
		BookingID:    bookingID,
		DocumentType: a.DocumentType,
		FileID:       blob.ID,
		CreatedBy:    actor,
	}); err != nil {
		return "", err
	}
	return blob.ID, nil
}

// deleteStale удаляет объекты заменённых документов после коммита.
// При ошибке ключи остаются в pending_blob_deletions до фоновой очистки.
func (s *DocumentService) deleteStale(ctx context.Context, logger *slog.Logger, keys []string) {
	if len(keys) == 0 {
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.StoreTimeout)
	defer cancel()

	if err := s.store.Delete(delCtx, keys); err != nil {
		logger.Warn("Не удалось удалить заменённые объекты, удаление отложено",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.repos.Deletions.Remove(delCtx, keys); err != nil {
		logger.Warn("Не удалось снять ключи с очереди удаления",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

// notify отправляет уведомление владельцу бронирования. Ошибка только логируется.
func (s *DocumentService) notify(ctx context.Context, logger *slog.Logger, plan attemptPlan, form *model.ServiceForm, workingArea bool) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.NotifyTimeout)
	defer cancel()

	err := s.notifier.Notify(notifyCtx, notify.Event{
		UserID:                       plan.booking.UserID,
		BookingID:                    plan.booking.ID,
		FormID:                       form.ID,
		FormNumber:                   form.FormNumber,
		ValidUntil:                   form.ValidUntil,
		RequiresWorkingAreaAgreement: workingArea,
		Regenerated:                  plan.previous != nil,
	})
	if err != nil {
		logger.Warn("Уведомление не отправлено",
			slog.String("form_number", form.FormNumber),
			slog.String("error", err.Error()),
		)
	}
}

// finish фиксирует метрики попытки. Для неуспешной попытки в журнал
// пишется история переходов и признак записи в БД.
func (s *DocumentService) finish(logger *slog.Logger, operation string, a *pipeline.Attempt, start time.Time) {
	state := a.Current()
	attemptsTotal.WithLabelValues(operation, string(state)).Inc()
	attemptDurationSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if !a.Terminal() {
		logger.Error("Попытка генерации завершилась в нетерминальном состоянии",
			slog.String("state", string(state)),
			slog.Any("history", a.History()),
		)
		return
	}
	if state != pipeline.StateDone {
		logger.Warn("Попытка генерации не завершена",
			slog.String("state", string(state)),
			slog.Bool("written", a.Written()),
			slog.Any("history", a.History()),
		)
	}
}

// advance переводит попытку в следующее состояние.
func (s *DocumentService) advance(logger *slog.Logger, a *pipeline.Attempt, target pipeline.State) {
	if err := a.TransitionTo(target); err != nil {
		logger.Error("Некорректный переход попытки генерации", slog.String("error", err.Error()))
	}
}

// stampNumber проставляет выделенный номер во входы рендерера.
func stampNumber(out *composer.Output, number string) {
	out.ServiceForm.FormNumber = number
	if out.WorkingArea != nil {
		out.WorkingArea.FormNumber = number
	}
}

func workspaceIDs(reservations []model.WorkspaceReservation) []string {
	seen := make(map[string]bool, len(reservations))
	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		if !seen[r.WorkspaceID] {
			seen[r.WorkspaceID] = true
			ids = append(ids, r.WorkspaceID)
		}
	}
	return ids
}

func producedKeys(p *ProduceResult) []string {
	var keys []string
	if p.ServiceForm != nil {
		keys = append(keys, p.ServiceForm.Object.Key)
	}
	if p.WorkingArea != nil {
		keys = append(keys, p.WorkingArea.Object.Key)
	}
	return keys
}

// mapRepoErr переводит ошибки репозитория в ошибки сервиса.
func mapRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return err
	}
}

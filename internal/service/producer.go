// producer.go - рендеринг и загрузка документов одной попытки генерации.
//
// Форма услуг и соглашение о рабочем месте формируются параллельно.
// Сбой формы услуг прерывает попытку, сбой соглашения только фиксируется
// в результате: форма услуг сохраняется без него.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/labbooking/document-module/internal/blobstore"
	"github.com/bigkaa/labbooking/document-module/internal/composer"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/renderer"
)

const pdfContentType = "application/pdf"

var (
	artifactsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dm_artifacts_total",
		Help: "Количество сформированных документов по виду и результату",
	}, []string{"kind", "result"})

	renderDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dm_render_duration_seconds",
		Help:    "Длительность рендеринга документа в секундах",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"kind"})
)

// Renderer - сервис рендеринга PDF.
type Renderer interface {
	Render(ctx context.Context, kind renderer.Kind, input any) ([]byte, error)
}

// ProduceRequest - документы одной попытки.
type ProduceRequest struct {
	BookingID  string
	FormNumber string
	Actor      string
	// ServiceForm - данные обязательной формы услуг
	ServiceForm composer.ServiceFormInput
	// WorkingArea == nil, если соглашение не требуется
	WorkingArea *composer.WorkingAreaInput
}

// Artifact - загруженный документ.
type Artifact struct {
	DocumentType model.DocumentType
	FileName     string
	ContentType  string
	Object       *blobstore.Object
}

// ProduceResult - результат формирования.
type ProduceResult struct {
	ServiceForm *Artifact
	// WorkingArea == nil, если соглашение не требовалось или не сформировано
	WorkingArea *Artifact
	// WorkingAreaErr - ошибка формирования соглашения
	WorkingAreaErr error
}

// ArtifactProducer рендерит документы и загружает их в хранилище.
type ArtifactProducer struct {
	renderer      Renderer
	store         blobstore.Store
	renderTimeout time.Duration
	uploadTimeout time.Duration
	logger        *slog.Logger
}

// NewArtifactProducer создаёт ArtifactProducer.
func NewArtifactProducer(
	r Renderer,
	store blobstore.Store,
	renderTimeout time.Duration,
	uploadTimeout time.Duration,
	logger *slog.Logger,
) *ArtifactProducer {
	return &ArtifactProducer{
		renderer:      r,
		store:         store,
		renderTimeout: renderTimeout,
		uploadTimeout: uploadTimeout,
		logger:        logger.With(slog.String("component", "producer")),
	}
}

// IdempotencyKey возвращает подсказку идемпотентности загрузки.
func IdempotencyKey(bookingID, formNumber string, docType model.DocumentType) string {
	return bookingID + "/" + formNumber + "/" + string(docType)
}

// FileName возвращает имя файла документа.
func FileName(formNumber string, kind renderer.Kind) string {
	return fmt.Sprintf("%s_%s.pdf", formNumber, kind)
}

// Produce формирует документы запроса.
// Возвращает ошибку с ErrArtifact, только если не удалась форма услуг.
func (p *ArtifactProducer) Produce(ctx context.Context, req ProduceRequest) (*ProduceResult, error) {
	result := &ProduceResult{}

	// Группа без общего контекста: сбой формы услуг не отменяет соглашение,
	// ошибку группы возвращает только форма услуг.
	var g errgroup.Group
	g.Go(func() error {
		var err error
		result.ServiceForm, err = p.produceOne(ctx, req,
			renderer.KindServiceForm, model.DocUnsignedServiceForm, req.ServiceForm)
		return err
	})
	if req.WorkingArea != nil {
		g.Go(func() error {
			result.WorkingArea, result.WorkingAreaErr = p.produceOne(ctx, req,
				renderer.KindWorkingAreaAgreement, model.DocUnsignedWorkspaceForm, req.WorkingArea)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if result.WorkingArea != nil {
			// На соглашение ещё не ссылается ни одна запись БД
			p.discard(ctx, result.WorkingArea)
		}
		return nil, fmt.Errorf("%w: форма услуг %s: %w", ErrArtifact, req.FormNumber, err)
	}

	if result.WorkingAreaErr != nil {
		p.logger.Warn("Соглашение о рабочем месте не сформировано",
			slog.String("booking_id", req.BookingID),
			slog.String("form_number", req.FormNumber),
			slog.String("error", result.WorkingAreaErr.Error()),
		)
	}

	return result, nil
}

// ProduceWorkingArea формирует только соглашение о рабочем месте
// для уже выпущенной формы req.FormNumber.
func (p *ArtifactProducer) ProduceWorkingArea(ctx context.Context, req ProduceRequest) (*Artifact, error) {
	if req.WorkingArea == nil {
		return nil, fmt.Errorf("%w: нет данных соглашения для формы %s", ErrPrecondition, req.FormNumber)
	}
	a, err := p.produceOne(ctx, req,
		renderer.KindWorkingAreaAgreement, model.DocUnsignedWorkspaceForm, req.WorkingArea)
	if err != nil {
		return nil, fmt.Errorf("%w: соглашение %s: %w", ErrArtifact, req.FormNumber, err)
	}
	return a, nil
}

// produceOne рендерит и загружает один документ, каждый шаг со своим таймаутом.
func (p *ArtifactProducer) produceOne(
	ctx context.Context,
	req ProduceRequest,
	kind renderer.Kind,
	docType model.DocumentType,
	input any,
) (*Artifact, error) {
	start := time.Now()
	renderCtx, cancel := context.WithTimeout(ctx, p.renderTimeout)
	data, err := p.renderer.Render(renderCtx, kind, input)
	cancel()
	renderDurationSeconds.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		artifactsTotal.WithLabelValues(string(kind), "render_error").Inc()
		return nil, fmt.Errorf("рендеринг: %w", err)
	}

	fileName := FileName(req.FormNumber, kind)
	uploadCtx, cancel := context.WithTimeout(ctx, p.uploadTimeout)
	defer cancel()
	obj, err := p.store.Upload(uploadCtx, blobstore.UploadRequest{
		Data:           data,
		FileName:       fileName,
		ContentType:    pdfContentType,
		UploadedBy:     req.Actor,
		IdempotencyKey: IdempotencyKey(req.BookingID, req.FormNumber, docType),
	})
	if err != nil {
		artifactsTotal.WithLabelValues(string(kind), "upload_error").Inc()
		return nil, fmt.Errorf("загрузка %s: %w", fileName, err)
	}

	artifactsTotal.WithLabelValues(string(kind), "ok").Inc()
	p.logger.Debug("Документ загружен",
		slog.String("booking_id", req.BookingID),
		slog.String("file_name", fileName),
		slog.String("key", obj.Key),
		slog.Int64("size", obj.Size),
	)

	return &Artifact{
		DocumentType: docType,
		FileName:     fileName,
		ContentType:  pdfContentType,
		Object:       obj,
	}, nil
}

// discard удаляет загруженный документ best-effort.
func (p *ArtifactProducer) discard(ctx context.Context, a *Artifact) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.uploadTimeout)
	defer cancel()
	if err := p.store.Delete(delCtx, []string{a.Object.Key}); err != nil {
		p.logger.Warn("Не удалось удалить невостребованный документ",
			slog.String("key", a.Object.Key),
			slog.String("error", err.Error()),
		)
	}
}

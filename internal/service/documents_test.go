package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/renderer"
)

const actor = "admin@lab"

func TestGenerate_ServiceFormOnly(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{})

	res, err := env.svc.Generate(context.Background(), actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if res.FormNumber != "SF-2025-00001" {
		t.Errorf("FormNumber: хотели SF-2025-00001, получили %s", res.FormNumber)
	}
	if res.ServiceFormURL == "" {
		t.Error("ServiceFormURL пуст")
	}
	if res.WorkingAreaFormURL != nil {
		t.Errorf("WorkingAreaFormURL: хотели nil, получили %s", *res.WorkingAreaFormURL)
	}
	if res.WorkingAreaUploadFailed {
		t.Error("WorkingAreaUploadFailed не должен быть установлен")
	}
	wantValid := time.Date(2025, 4, 9, 12, 0, 0, 0, time.UTC)
	if !res.ValidUntil.Equal(wantValid) {
		t.Errorf("ValidUntil: хотели %v, получили %v", wantValid, res.ValidUntil)
	}

	forms := env.db.formsOf("b1")
	if len(forms) != 1 {
		t.Fatalf("Форм: хотели 1, получили %d", len(forms))
	}
	f := forms[0]
	if f.Status != model.FormStatusGenerated || f.Version != 0 {
		t.Errorf("Форма: status=%s version=%d", f.Status, f.Version)
	}
	if !f.Total.Equal(decimal.RequireFromString("340.50")) {
		t.Errorf("Total: хотели 340.50, получили %s", f.Total)
	}
	if f.UnsignedFormFileID == nil || f.WorkspaceFormFileID != nil {
		t.Errorf("Указатели формы: unsigned=%v workspace=%v", f.UnsignedFormFileID, f.WorkspaceFormFileID)
	}

	docs := env.db.documentsOf("b1")
	if len(docs[model.DocUnsignedServiceForm]) != 1 || len(docs) != 1 {
		t.Errorf("Документы: %v", docs)
	}

	audit := env.db.auditLog()
	if len(audit) != 1 || audit[0].Action != model.AuditFormGenerated || audit[0].OldNumber != nil {
		t.Errorf("Журнал аудита: %+v", audit)
	}
	if env.notifier.count() != 1 {
		t.Errorf("Уведомлений: хотели 1, получили %d", env.notifier.count())
	}
}

func TestGenerate_WithWorkingArea(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})

	res, err := env.svc.Generate(context.Background(), actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.WorkingAreaFormURL == nil {
		t.Fatal("WorkingAreaFormURL: хотели URL, получили nil")
	}

	f := env.db.formsOf("b1")[0]
	if !f.Total.Equal(decimal.RequireFromString("840.50")) {
		t.Errorf("Total: хотели 840.50, получили %s", f.Total)
	}
	if f.WorkspaceFormFileID == nil {
		t.Error("WorkspaceFormFileID не заполнен")
	}

	docs := env.db.documentsOf("b1")
	if len(docs[model.DocUnsignedServiceForm]) != 1 || len(docs[model.DocUnsignedWorkspaceForm]) != 1 {
		t.Errorf("Документы: %v", docs)
	}

	env.notifier.mu.Lock()
	ev := env.notifier.events[0]
	env.notifier.mu.Unlock()
	if !ev.RequiresWorkingAreaAgreement || ev.Regenerated {
		t.Errorf("Событие: %+v", ev)
	}
}

func TestGenerate_PricingTableFallback(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, pricingTable: true})

	if _, err := env.svc.Generate(context.Background(), actor, "b1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	f := env.db.formsOf("b1")[0]
	if !f.Total.Equal(decimal.RequireFromString("740.50")) {
		t.Errorf("Total: хотели 740.50, получили %s", f.Total)
	}
}

func TestGenerate_WorkingAreaUploadFails(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	env.store.failUpload = map[string]error{string(renderer.KindWorkingAreaAgreement): errInjected}

	res, err := env.svc.Generate(context.Background(), actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.WorkingAreaUploadFailed || res.WorkingAreaUploadError == "" {
		t.Errorf("Ожидался флаг частичного сбоя: %+v", res)
	}
	if res.WorkingAreaFormURL != nil {
		t.Error("WorkingAreaFormURL должен быть nil")
	}

	f := env.db.formsOf("b1")[0]
	if f.UnsignedFormFileID == nil || f.WorkspaceFormFileID != nil {
		t.Errorf("Указатели формы: unsigned=%v workspace=%v", f.UnsignedFormFileID, f.WorkspaceFormFileID)
	}
	docs := env.db.documentsOf("b1")
	if len(docs) != 1 || len(docs[model.DocUnsignedServiceForm]) != 1 {
		t.Errorf("Документы: %v", docs)
	}
}

func TestGenerate_ServiceFormFailureAborts(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	env.renderer.fail = map[renderer.Kind]error{renderer.KindServiceForm: errInjected}

	_, err := env.svc.Generate(context.Background(), actor, "b1")
	if !errors.Is(err, ErrArtifact) {
		t.Fatalf("Ожидалась ErrArtifact, получили %v", err)
	}

	forms, docs, blobs, audit := env.db.counts()
	if forms+docs+blobs+audit != 0 {
		t.Errorf("БД изменена: forms=%d docs=%d blobs=%d audit=%d", forms, docs, blobs, audit)
	}
	// Соглашение загружено параллельно и должно быть удалено
	if env.store.size() != 0 {
		t.Errorf("В хранилище остались объекты: %d", env.store.size())
	}
	if env.notifier.count() != 0 {
		t.Error("Уведомление не должно отправляться")
	}
}

func TestGenerate_MissingPricingFailsBeforeRendering(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true})

	_, err := env.svc.Generate(context.Background(), actor, "b1")
	if !errors.Is(err, ErrComposition) {
		t.Fatalf("Ожидалась ErrComposition, получили %v", err)
	}
	if env.renderer.callCount() != 0 {
		t.Errorf("Рендерер вызван %d раз", env.renderer.callCount())
	}
	if env.store.size() != 0 {
		t.Error("Хранилище изменено")
	}
}

func TestGenerate_Preconditions(t *testing.T) {
	env := newTestEnv()
	env.addBooking("pending", bookingSpec{status: model.BookingStatusPending})
	env.addBooking("done", bookingSpec{})
	if _, err := env.svc.Generate(context.Background(), actor, "done"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	calls := env.renderer.callCount()

	tests := []struct {
		name      string
		actor     string
		bookingID string
		want      error
	}{
		{"бронирование не найдено", actor, "missing", ErrNotFound},
		{"статус не approved", actor, "pending", ErrPrecondition},
		{"форма уже существует", actor, "done", ErrConflict},
		{"пустой инициатор", "", "done", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Generate(context.Background(), tt.actor, tt.bookingID)
			if !errors.Is(err, tt.want) {
				t.Errorf("Ожидалась %v, получили %v", tt.want, err)
			}
		})
	}

	if env.renderer.callCount() != calls {
		t.Error("Рендерер вызван при невыполненном предусловии")
	}
}

func TestRegenerate_VersionSequence(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID)
	if err != nil {
		t.Fatalf("Regenerate v1: %v", err)
	}
	third, err := env.svc.Regenerate(ctx, actor, second.ServiceFormID)
	if err != nil {
		t.Fatalf("Regenerate v2: %v", err)
	}

	want := []string{"SF-2025-00001", "SF-2025-00001-v1", "SF-2025-00001-v2"}
	got := []string{first.FormNumber, second.FormNumber, third.FormNumber}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Номер %d: хотели %s, получили %s", i, want[i], got[i])
		}
	}

	forms := env.db.formsOf("b1")
	if len(forms) != 3 {
		t.Fatalf("Форм: хотели 3, получили %d", len(forms))
	}
	for _, f := range forms[:2] {
		if f.Status != model.FormStatusSuperseded || f.UnsignedFormFileID != nil || f.WorkspaceFormFileID != nil {
			t.Errorf("Форма %s не заменена: status=%s", f.FormNumber, f.Status)
		}
	}
	if forms[2].Status != model.FormStatusGenerated || forms[2].Version != 2 {
		t.Errorf("Актуальная форма: %+v", forms[2])
	}

	docs := env.db.documentsOf("b1")
	for docType, list := range docs {
		if len(list) != 1 {
			t.Errorf("Документов %s: хотели 1, получили %d", docType, len(list))
		}
	}
	// Объекты первых двух генераций удалены сразу после коммита
	if env.store.size() != 2 {
		t.Errorf("Объектов в хранилище: хотели 2, получили %d", env.store.size())
	}
	if keys := env.db.pendingKeys(); len(keys) != 0 {
		t.Errorf("Очередь удаления не пуста: %v", keys)
	}

	audit := env.db.auditLog()
	if len(audit) != 3 {
		t.Fatalf("Записей аудита: хотели 3, получили %d", len(audit))
	}
	last := audit[2]
	if last.Action != model.AuditFormRegenerated || last.OldNumber == nil ||
		*last.OldNumber != "SF-2025-00001-v1" || last.NewNumber != "SF-2025-00001-v2" {
		t.Errorf("Последняя запись аудита: %+v", last)
	}
}

func TestRegenerate_FromSupersededFormContinuesSequence(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	res, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID)
	if err != nil {
		t.Fatalf("Regenerate от заменённой формы: %v", err)
	}
	if res.FormNumber != "SF-2025-00001-v2" {
		t.Errorf("FormNumber: хотели SF-2025-00001-v2, получили %s", res.FormNumber)
	}
}

func TestRegenerate_RemovesSignedDocuments(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	signedKey := env.addSignedDocument("b1", model.DocSignedServiceForm)
	receiptKey := env.addSignedDocument("b1", model.DocPaymentReceipt)

	if _, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}

	docs := env.db.documentsOf("b1")
	if len(docs[model.DocSignedServiceForm]) != 0 {
		t.Error("Подписанная форма должна быть удалена")
	}
	if len(docs[model.DocPaymentReceipt]) != 1 {
		t.Error("Квитанция об оплате не должна затрагиваться")
	}
	if env.store.has(signedKey) {
		t.Error("Объект подписанной формы не удалён")
	}
	if !env.store.has(receiptKey) {
		t.Error("Объект квитанции удалён")
	}
}

func TestRegenerate_CommitFailureRollsBack(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	before := env.db.snapshot()
	objectsBefore := env.store.size()

	env.db.failAudit = errInjected
	if _, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID); !errors.Is(err, errInjected) {
		t.Fatalf("Ожидалась внедрённая ошибка, получили %v", err)
	}

	forms := env.db.formsOf("b1")
	if len(forms) != 1 || forms[0].Status != model.FormStatusGenerated || forms[0].UnsignedFormFileID == nil {
		t.Errorf("Форма изменена: %+v", forms)
	}
	after := env.db.snapshot()
	if len(after.documents) != len(before.documents) || len(after.blobs) != len(before.blobs) {
		t.Errorf("Документы изменены: было %d/%d, стало %d/%d",
			len(before.documents), len(before.blobs), len(after.documents), len(after.blobs))
	}
	for id := range before.documents {
		if _, ok := after.documents[id]; !ok {
			t.Errorf("Документ %s удалён", id)
		}
	}
	if len(after.deletions) != 0 {
		t.Error("Очередь удаления изменена")
	}
	// Новые объекты не удаляются, старые остаются
	if env.store.size() != objectsBefore+2 {
		t.Errorf("Объектов: хотели %d, получили %d", objectsBefore+2, env.store.size())
	}
	if env.notifier.count() != 1 {
		t.Error("Уведомление отправлено после отката")
	}
}

func TestRegenerate_StaleDeleteFailureLeavesOutbox(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	env.store.setFailDelete(errInjected)

	if _, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID); err != nil {
		t.Fatalf("Ошибка удаления старых объектов не должна возвращаться: %v", err)
	}
	keys := env.db.pendingKeys()
	if len(keys) != 1 {
		t.Fatalf("В очереди удаления: хотели 1, получили %v", keys)
	}

	env.store.setFailDelete(nil)
	cleanup := NewCleanupService(env.db.repos().Deletions, env.store, time.Hour, 0, time.Second, testLogger())
	cleanup.now = func() time.Time { return time.Now().Add(time.Minute) }
	result := cleanup.RunOnce(ctx)
	if result.Deleted != 1 || result.Errors != 0 {
		t.Errorf("Очистка: %+v", result)
	}
	if env.store.has(keys[0]) {
		t.Error("Объект не удалён очисткой")
	}
	if len(env.db.pendingKeys()) != 0 {
		t.Error("Очередь удаления не пуста")
	}
}

func TestGenerate_NotifyFailureNotSurfaced(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{})
	env.notifier.err = errInjected

	if _, err := env.svc.Generate(context.Background(), actor, "b1"); err != nil {
		t.Fatalf("Ошибка уведомления не должна возвращаться: %v", err)
	}
	if env.notifier.count() != 1 {
		t.Error("Уведомление не отправлялось")
	}
}

func TestRegenerate_NotFound(t *testing.T) {
	env := newTestEnv()
	if _, err := env.svc.Regenerate(context.Background(), actor, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ожидалась ErrNotFound, получили %v", err)
	}
}

func TestRegenerate_ConcurrentNeverDuplicates(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	const workers = 6
	var wg sync.WaitGroup
	results := make([]*GenerationResult, workers)
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = env.svc.Regenerate(ctx, actor, first.ServiceFormID)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	succeeded := 0
	for i := range workers {
		if errs[i] != nil {
			if !errors.Is(errs[i], ErrConflict) {
				t.Errorf("Неожиданная ошибка: %v", errs[i])
			}
			continue
		}
		succeeded++
		if seen[results[i].FormNumber] {
			t.Errorf("Номер выдан повторно: %s", results[i].FormNumber)
		}
		seen[results[i].FormNumber] = true
	}
	if succeeded == 0 {
		t.Fatal("Ни одна перегенерация не выполнена")
	}

	current := 0
	for _, f := range env.db.formsOf("b1") {
		if f.Status == model.FormStatusGenerated {
			current++
		}
	}
	if current != 1 {
		t.Errorf("Актуальных форм: хотели 1, получили %d", current)
	}
	for docType, list := range env.db.documentsOf("b1") {
		if len(list) != 1 {
			t.Errorf("Документов %s: хотели 1, получили %d", docType, len(list))
		}
	}
}

func TestListCurrentDocuments(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	ctx := context.Background()

	if _, err := env.svc.Generate(ctx, actor, "b1"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	docs, err := env.svc.ListCurrentDocuments(ctx, "b1")
	if err != nil {
		t.Fatalf("ListCurrentDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Документов: хотели 2, получили %d", len(docs))
	}
	for _, d := range docs {
		if d.File == nil || d.File.URL == "" {
			t.Errorf("Документ %s без файла", d.DocumentType)
		}
	}

	if _, err := env.svc.ListCurrentDocuments(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Ожидалась ErrNotFound, получили %v", err)
	}
}

func TestRetryWorkingArea_RestoresAgreementAfterRegeneration(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{workspace: true, storedRate: true})
	ctx := context.Background()

	first, err := env.svc.Generate(ctx, actor, "b1")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	env.store.failUpload = map[string]error{string(renderer.KindWorkingAreaAgreement): errInjected}
	second, err := env.svc.Regenerate(ctx, actor, first.ServiceFormID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if !second.WorkingAreaUploadFailed {
		t.Fatalf("Ожидался сбой соглашения: %+v", second)
	}
	// Соглашение со старым номером удалено вместе с заменённой формой
	if docs := env.db.documentsOf("b1"); len(docs[model.DocUnsignedWorkspaceForm]) != 0 {
		t.Fatalf("Документы после перегенерации: %v", docs)
	}

	env.store.failUpload = nil
	res, err := env.svc.RetryWorkingArea(ctx, actor, second.ServiceFormID)
	if err != nil {
		t.Fatalf("RetryWorkingArea: %v", err)
	}
	if res.FormNumber != "SF-2025-00001-v1" || res.WorkingAreaFormURL == nil {
		t.Errorf("Результат: %+v", res)
	}
	if res.ServiceFormURL != second.ServiceFormURL || !res.ValidUntil.Equal(second.ValidUntil) {
		t.Errorf("Форма услуг изменилась: %+v", res)
	}

	forms := env.db.formsOf("b1")
	current := forms[len(forms)-1]
	if current.WorkspaceFormFileID == nil || current.FormNumber != "SF-2025-00001-v1" {
		t.Fatalf("Актуальная форма: %+v", current)
	}
	docs := env.db.documentsOf("b1")
	if len(docs[model.DocUnsignedWorkspaceForm]) != 1 || len(docs[model.DocUnsignedServiceForm]) != 1 {
		t.Fatalf("Документы: %v", docs)
	}

	env.db.mu.Lock()
	blob := env.db.st.blobs[*current.WorkspaceFormFileID]
	env.db.mu.Unlock()
	if blob.FileName != "SF-2025-00001-v1_working_area_agreement.pdf" {
		t.Errorf("Имя файла соглашения: %s", blob.FileName)
	}
	if len(blob.Checksum) != 64 {
		t.Errorf("Контрольная сумма не сохранена: %q", blob.Checksum)
	}

	audit := env.db.auditLog()
	if last := audit[len(audit)-1]; last.Action != model.AuditWorkingAreaAttached || last.NewNumber != "SF-2025-00001-v1" {
		t.Errorf("Запись аудита: %+v", last)
	}
	env.notifier.mu.Lock()
	ev := env.notifier.events[len(env.notifier.events)-1]
	env.notifier.mu.Unlock()
	if !ev.WorkingAreaAttached || ev.FormNumber != "SF-2025-00001-v1" {
		t.Errorf("Событие: %+v", ev)
	}

	if _, err := env.svc.RetryWorkingArea(ctx, actor, second.ServiceFormID); !errors.Is(err, ErrConflict) {
		t.Errorf("Повторный вызов: ожидали ErrConflict, получили %v", err)
	}
	if _, err := env.svc.RetryWorkingArea(ctx, actor, first.ServiceFormID); !errors.Is(err, ErrConflict) {
		t.Errorf("Заменённая форма: ожидали ErrConflict, получили %v", err)
	}
}

func TestRetryWorkingArea_Preconditions(t *testing.T) {
	env := newTestEnv()
	env.addBooking("plain", bookingSpec{})
	env.addBooking("ws", bookingSpec{workspace: true, storedRate: true})
	ctx := context.Background()

	plain, err := env.svc.Generate(ctx, actor, "plain")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := env.svc.RetryWorkingArea(ctx, actor, plain.ServiceFormID); !errors.Is(err, ErrPrecondition) {
		t.Errorf("Без рабочего места: ожидали ErrPrecondition, получили %v", err)
	}
	if _, err := env.svc.RetryWorkingArea(ctx, "", plain.ServiceFormID); !errors.Is(err, ErrValidation) {
		t.Errorf("Без инициатора: ожидали ErrValidation, получили %v", err)
	}
	if _, err := env.svc.RetryWorkingArea(ctx, actor, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Нет формы: ожидали ErrNotFound, получили %v", err)
	}

	env.store.failUpload = map[string]error{string(renderer.KindWorkingAreaAgreement): errInjected}
	ws, err := env.svc.Generate(ctx, actor, "ws")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	_, beforeDocs, beforeBlobs, beforeAudit := env.db.counts()
	if _, err := env.svc.RetryWorkingArea(ctx, actor, ws.ServiceFormID); !errors.Is(err, ErrArtifact) {
		t.Errorf("Сбой загрузки: ожидали ErrArtifact, получили %v", err)
	}
	_, docs, blobs, audit := env.db.counts()
	if docs != beforeDocs || blobs != beforeBlobs || audit != beforeAudit {
		t.Errorf("Неудачная попытка изменила БД: docs %d→%d blobs %d→%d audit %d→%d",
			beforeDocs, docs, beforeBlobs, blobs, beforeAudit, audit)
	}
	if f := env.db.formsOf("ws")[0]; f.WorkspaceFormFileID != nil {
		t.Error("Указатель соглашения не должен появиться")
	}
}

func TestGenerate_AbortedAttemptLogsHistory(t *testing.T) {
	env := newTestEnv()
	env.addBooking("b1", bookingSpec{})
	env.renderer.fail = map[renderer.Kind]error{renderer.KindServiceForm: errInjected}

	var buf bytes.Buffer
	env.svc.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	if _, err := env.svc.Generate(context.Background(), actor, "b1"); !errors.Is(err, ErrArtifact) {
		t.Fatalf("Ожидалась ErrArtifact, получили %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`"state":"aborted"`,
		`"written":false`,
		`"from":"composing","to":"producing"`,
		`"from":"producing","to":"aborted"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("В журнале нет %s:\n%s", want, out)
		}
	}
}

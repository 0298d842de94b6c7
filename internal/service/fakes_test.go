package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bigkaa/labbooking/document-module/internal/blobstore"
	"github.com/bigkaa/labbooking/document-module/internal/domain/model"
	"github.com/bigkaa/labbooking/document-module/internal/notify"
	"github.com/bigkaa/labbooking/document-module/internal/renderer"
	"github.com/bigkaa/labbooking/document-module/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- in-memory БД ---

type memState struct {
	bookings     map[string]*model.Booking
	users        map[string]*model.User
	items        map[string][]model.LineItem
	reservations map[string][]model.WorkspaceReservation
	pricing      []model.WorkspacePricing

	forms     map[string]*model.ServiceForm
	documents map[string]*model.BookingDocument
	blobs     map[string]*model.FileBlob
	audit     []*model.AuditLog
	counters  map[string]int
	deletions map[string]*model.PendingDeletion
}

// memDB - хранилище с транзакциями через снимок состояния.
type memDB struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *memState

	// failAudit - ошибка записи журнала аудита (проверка отката)
	failAudit error
}

func newMemDB() *memDB {
	return &memDB{st: &memState{
		bookings:     map[string]*model.Booking{},
		users:        map[string]*model.User{},
		items:        map[string][]model.LineItem{},
		reservations: map[string][]model.WorkspaceReservation{},
		forms:        map[string]*model.ServiceForm{},
		documents:    map[string]*model.BookingDocument{},
		blobs:        map[string]*model.FileBlob{},
		counters:     map[string]int{},
		deletions:    map[string]*model.PendingDeletion{},
	}}
}

func (db *memDB) snapshot() *memState {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := *db.st
	s.forms = make(map[string]*model.ServiceForm, len(db.st.forms))
	for k, v := range db.st.forms {
		c := *v
		s.forms[k] = &c
	}
	s.documents = make(map[string]*model.BookingDocument, len(db.st.documents))
	for k, v := range db.st.documents {
		c := *v
		s.documents[k] = &c
	}
	s.blobs = make(map[string]*model.FileBlob, len(db.st.blobs))
	for k, v := range db.st.blobs {
		c := *v
		s.blobs[k] = &c
	}
	s.audit = slices.Clone(db.st.audit)
	s.counters = make(map[string]int, len(db.st.counters))
	for k, v := range db.st.counters {
		s.counters[k] = v
	}
	s.deletions = make(map[string]*model.PendingDeletion, len(db.st.deletions))
	for k, v := range db.st.deletions {
		c := *v
		s.deletions[k] = &c
	}
	return &s
}

func (db *memDB) restore(s *memState) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.st = s
}

func (db *memDB) repos() *repository.Repos {
	return &repository.Repos{
		Bookings:  &memBookings{db},
		Forms:     &memForms{db},
		Documents: &memDocuments{db},
		Blobs:     &memBlobs{db},
		Audit:     &memAudit{db},
		Counters:  &memCounters{db},
		Deletions: &memDeletions{db},
	}
}

// Transact сериализует транзакции и откатывает состояние при ошибке.
func (db *memDB) Transact(ctx context.Context, fn func(repos *repository.Repos) error) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	snap := db.snapshot()
	if err := fn(db.repos()); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

func (db *memDB) formsOf(bookingID string) []*model.ServiceForm {
	db.mu.Lock()
	defer db.mu.Unlock()
	var res []*model.ServiceForm
	for _, f := range db.st.forms {
		if f.BookingID == bookingID {
			c := *f
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Version < res[j].Version })
	return res
}

func (db *memDB) documentsOf(bookingID string) map[model.DocumentType][]*model.BookingDocument {
	db.mu.Lock()
	defer db.mu.Unlock()
	res := map[model.DocumentType][]*model.BookingDocument{}
	for _, d := range db.st.documents {
		if d.BookingID == bookingID {
			c := *d
			res[d.DocumentType] = append(res[d.DocumentType], &c)
		}
	}
	return res
}

func (db *memDB) counts() (forms, docs, blobs, audit int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.st.forms), len(db.st.documents), len(db.st.blobs), len(db.st.audit)
}

func (db *memDB) auditLog() []*model.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return slices.Clone(db.st.audit)
}

func (db *memDB) pendingKeys() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	keys := make([]string, 0, len(db.st.deletions))
	for k := range db.st.deletions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type memBookings struct{ db *memDB }

func (r *memBookings) GetByID(_ context.Context, id string) (*model.Booking, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.st.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *b
	return &c, nil
}

func (r *memBookings) LockForUpdate(ctx context.Context, id string) (*model.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *memBookings) GetUser(_ context.Context, userID string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.st.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *memBookings) ListItems(_ context.Context, bookingID string) ([]model.LineItem, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return slices.Clone(r.db.st.items[bookingID]), nil
}

func (r *memBookings) ListReservations(_ context.Context, bookingID string) ([]model.WorkspaceReservation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return slices.Clone(r.db.st.reservations[bookingID]), nil
}

func (r *memBookings) ListPricing(_ context.Context, workspaceIDs []string, userType string) ([]model.WorkspacePricing, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var res []model.WorkspacePricing
	for _, p := range r.db.st.pricing {
		if p.UserType == userType && slices.Contains(workspaceIDs, p.WorkspaceID) {
			res = append(res, p)
		}
	}
	return res, nil
}

type memForms struct{ db *memDB }

func (r *memForms) Create(_ context.Context, f *model.ServiceForm) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.st.forms {
		if existing.FormNumber == f.FormNumber {
			return fmt.Errorf("%w: номер %s", repository.ErrConflict, f.FormNumber)
		}
		if existing.BookingID == f.BookingID && existing.Status == model.FormStatusGenerated &&
			f.Status == model.FormStatusGenerated {
			return fmt.Errorf("%w: актуальная форма", repository.ErrConflict)
		}
	}
	f.CreatedAt = time.Now()
	f.UpdatedAt = f.CreatedAt
	c := *f
	r.db.st.forms[f.ID] = &c
	return nil
}

func (r *memForms) GetByID(_ context.Context, id string) (*model.ServiceForm, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.st.forms[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *f
	return &c, nil
}

func (r *memForms) GetCurrentByBooking(_ context.Context, bookingID string) (*model.ServiceForm, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, f := range r.db.st.forms {
		if f.BookingID == bookingID && f.Status == model.FormStatusGenerated {
			c := *f
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memForms) CountByBooking(_ context.Context, bookingID string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, f := range r.db.st.forms {
		if f.BookingID == bookingID {
			n++
		}
	}
	return n, nil
}

func (r *memForms) ListNumbersWithPrefix(_ context.Context, prefix string) ([]string, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var res []string
	for _, f := range r.db.st.forms {
		if strings.HasPrefix(f.FormNumber, prefix) {
			res = append(res, f.FormNumber)
		}
	}
	return res, nil
}

func (r *memForms) Supersede(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.st.forms[id]
	if !ok || f.Status != model.FormStatusGenerated {
		return repository.ErrNotFound
	}
	f.Status = model.FormStatusSuperseded
	f.UnsignedFormFileID = nil
	f.SignedFormFileID = nil
	f.WorkspaceFormFileID = nil
	f.SignedWorkspaceFormFileID = nil
	return nil
}

func (r *memForms) SetUnsignedFiles(_ context.Context, id, serviceFileID string, workspaceFileID *string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.st.forms[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.UnsignedFormFileID = &serviceFileID
	f.WorkspaceFormFileID = workspaceFileID
	return nil
}

func (r *memForms) SetWorkspaceFile(_ context.Context, id, fileID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	f, ok := r.db.st.forms[id]
	if !ok || f.Status != model.FormStatusGenerated || f.WorkspaceFormFileID != nil {
		return fmt.Errorf("%w: форма %s", repository.ErrConflict, id)
	}
	f.WorkspaceFormFileID = &fileID
	return nil
}

type memDocuments struct{ db *memDB }

func (r *memDocuments) Create(_ context.Context, d *model.BookingDocument) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.st.documents {
		if existing.BookingID == d.BookingID && existing.DocumentType == d.DocumentType {
			return fmt.Errorf("%w: документ %s", repository.ErrConflict, d.DocumentType)
		}
	}
	if _, ok := r.db.st.blobs[d.FileID]; !ok {
		return fmt.Errorf("нарушение внешнего ключа file_id %s", d.FileID)
	}
	c := *d
	r.db.st.documents[d.ID] = &c
	return nil
}

func (r *memDocuments) ListByBooking(_ context.Context, bookingID string, types []model.DocumentType) ([]*model.BookingDocument, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var res []*model.BookingDocument
	for _, d := range r.db.st.documents {
		if d.BookingID != bookingID {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, d.DocumentType) {
			continue
		}
		c := *d
		if b, ok := r.db.st.blobs[d.FileID]; ok {
			fb := *b
			c.File = &fb
		}
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].DocumentType < res[j].DocumentType })
	return res, nil
}

func (r *memDocuments) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := r.db.st.documents[id]; ok {
			delete(r.db.st.documents, id)
			n++
		}
	}
	return n, nil
}

type memBlobs struct{ db *memDB }

func (r *memBlobs) Create(_ context.Context, b *model.FileBlob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.st.blobs {
		if existing.StorageKey == b.StorageKey {
			return fmt.Errorf("%w: объект %s", repository.ErrConflict, b.StorageKey)
		}
	}
	c := *b
	r.db.st.blobs[b.ID] = &c
	return nil
}

func (r *memBlobs) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := r.db.st.blobs[id]; ok {
			delete(r.db.st.blobs, id)
			n++
		}
	}
	return n, nil
}

type memAudit struct{ db *memDB }

func (r *memAudit) Create(_ context.Context, a *model.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failAudit != nil {
		return r.db.failAudit
	}
	c := *a
	r.db.st.audit = append(r.db.st.audit, &c)
	return nil
}

func (r *memAudit) ListByBooking(_ context.Context, bookingID string) ([]*model.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var res []*model.AuditLog
	for _, a := range r.db.st.audit {
		if a.BookingID == bookingID {
			res = append(res, a)
		}
	}
	return res, nil
}

type memCounters struct{ db *memDB }

func (r *memCounters) Next(_ context.Context, scope string, seed int) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	v := max(r.db.st.counters[scope], seed) + 1
	r.db.st.counters[scope] = v
	return v, nil
}

type memDeletions struct{ db *memDB }

func (r *memDeletions) Enqueue(_ context.Context, keys []string, reason string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, k := range keys {
		if _, ok := r.db.st.deletions[k]; ok {
			continue
		}
		r.db.st.deletions[k] = &model.PendingDeletion{
			ID:         "del-" + k,
			StorageKey: k,
			Reason:     reason,
			CreatedAt:  time.Now().UTC(),
		}
	}
	return nil
}

func (r *memDeletions) Remove(_ context.Context, keys []string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, k := range keys {
		delete(r.db.st.deletions, k)
	}
	return nil
}

func (r *memDeletions) ListDue(_ context.Context, before time.Time, limit int) ([]*model.PendingDeletion, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var res []*model.PendingDeletion
	for _, d := range r.db.st.deletions {
		if d.CreatedAt.Before(before) {
			c := *d
			res = append(res, &c)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].StorageKey < res[j].StorageKey })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *memDeletions) MarkFailed(_ context.Context, id, lastError string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, d := range r.db.st.deletions {
		if d.ID == id {
			d.Attempts++
			d.LastError = &lastError
			return nil
		}
	}
	return repository.ErrNotFound
}

// --- внешние сервисы ---

// fakeRenderer возвращает PDF-заглушку с номером формы.
type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderer.Kind
	fail  map[renderer.Kind]error
	// block - рендеринг вида ждёт отмены контекста
	block map[renderer.Kind]bool
	// delay - рендеринг вида длится заданное время, если контекст не отменён
	delay map[renderer.Kind]time.Duration
}

func (r *fakeRenderer) Render(ctx context.Context, kind renderer.Kind, input any) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, kind)
	err := r.fail[kind]
	block := r.block[kind]
	delay := r.delay[kind]
	r.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%%PDF-1.7 %s %T", kind, input)), nil
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeStore - хранилище объектов в памяти.
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	objects map[string][]byte
	uploads []blobstore.UploadRequest
	// failUpload - ошибка загрузки файлов, имя которых содержит ключ
	failUpload map[string]error
	failDelete error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Upload(_ context.Context, req blobstore.UploadRequest) (*blobstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for substr, err := range s.failUpload {
		if strings.Contains(req.FileName, substr) {
			return nil, err
		}
	}
	s.seq++
	key := fmt.Sprintf("obj-%03d", s.seq)
	s.objects[key] = req.Data
	s.uploads = append(s.uploads, req)
	sum := sha256.Sum256(req.Data)
	return &blobstore.Object{
		Key:      key,
		URL:      "http://blobs.local/" + key,
		Size:     int64(len(req.Data)),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

func (s *fakeStore) Delete(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete != nil {
		return s.failDelete
	}
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *fakeStore) setFailDelete(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDelete = err
}

type fakeFacility struct {
	err error
}

func (f *fakeFacility) GetEffectiveConfig(context.Context) (*model.FacilityConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.FacilityConfig{
		FacilityName: "Центр коллективного пользования",
		Institution:  "Университет",
	}, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// --- окружение ---

var errInjected = errors.New("внедрённая ошибка")

type testEnv struct {
	db       *memDB
	renderer *fakeRenderer
	store    *fakeStore
	notifier *fakeNotifier
	svc      *DocumentService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		db:       newMemDB(),
		renderer: &fakeRenderer{},
		store:    newFakeStore(),
		notifier: &fakeNotifier{},
	}
	logger := testLogger()
	producer := NewArtifactProducer(env.renderer, env.store, time.Second, time.Second, logger)
	env.svc = NewDocumentService(env.db.repos(), env.db, &fakeFacility{}, producer, env.store, env.notifier,
		DocumentServiceConfig{
			FormPrefix:    "SF",
			FormValidity:  30 * 24 * time.Hour,
			StoreTimeout:  time.Second,
			NotifyTimeout: time.Second,
		}, logger)
	env.svc.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }
	return env
}

type bookingSpec struct {
	status       model.BookingStatus
	workspace    bool
	storedRate   bool
	pricingTable bool
}

// addBooking создаёт бронирование: XRD 200.50 + SEM 140.00 и, при необходимости,
// аренду рабочего места 1-5 марта по 100.00 в день.
func (env *testEnv) addBooking(id string, opts bookingSpec) {
	if opts.status == "" {
		opts.status = model.BookingStatusApproved
	}
	db := env.db
	db.mu.Lock()
	defer db.mu.Unlock()

	userID := "user-" + id
	db.st.users[userID] = &model.User{ID: userID, FullName: "Ирина Смирнова", Email: "irina@example.com", UserType: "external"}
	db.st.bookings[id] = &model.Booking{
		ID:            id,
		BookingNumber: "BK-" + id,
		UserID:        userID,
		Status:        opts.status,
		HasWorkspace:  opts.workspace,
		StartDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	db.st.items[id] = []model.LineItem{
		{ID: id + "-i1", BookingID: id, ServiceName: "XRD", Quantity: 2, UnitPrice: decimal.RequireFromString("100.25"),
			TotalPrice: decimal.RequireFromString("200.50"), Position: 1},
		{ID: id + "-i2", BookingID: id, ServiceName: "SEM", Quantity: 1, UnitPrice: decimal.RequireFromString("140.00"),
			TotalPrice: decimal.RequireFromString("140.00"), Position: 2},
	}
	if !opts.workspace {
		return
	}

	res := model.WorkspaceReservation{
		ID:            id + "-r1",
		BookingID:     id,
		WorkspaceID:   "ws-1",
		WorkspaceName: "Бокс 1",
		StartDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
	}
	if opts.storedRate {
		unit := "day"
		rate := decimal.RequireFromString("100.00")
		res.BillingUnit = &unit
		res.UnitRate = &rate
	}
	db.st.reservations[id] = []model.WorkspaceReservation{res}
	if opts.pricingTable {
		db.st.pricing = append(db.st.pricing, model.WorkspacePricing{
			ID: "p-1", WorkspaceID: "ws-1", UserType: "external", BillingUnit: "day",
			Rate: decimal.RequireFromString("80.00"), ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		})
	}
}

// addSignedDocument добавляет подписанный документ к бронированию.
func (env *testEnv) addSignedDocument(bookingID string, docType model.DocumentType) string {
	obj, _ := env.store.Upload(context.Background(), blobstore.UploadRequest{FileName: "signed.pdf", Data: []byte("signed")})
	db := env.db
	db.mu.Lock()
	defer db.mu.Unlock()
	blobID := "blob-" + obj.Key
	db.st.blobs[blobID] = &model.FileBlob{ID: blobID, StorageKey: obj.Key, URL: obj.URL}
	db.st.documents["doc-"+obj.Key] = &model.BookingDocument{
		ID: "doc-" + obj.Key, BookingID: bookingID, DocumentType: docType, FileID: blobID,
	}
	return obj.Key
}

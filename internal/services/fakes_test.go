package services

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"sync"
	"testing"

	"gorm.io/gorm"

	"DealRoom/internal/models"
	"DealRoom/internal/testutil"
)

type fakeProvider struct {
	mu        sync.Mutex
	created   []PaymentIntentRequest
	cancelled []string
	refunds   []int64

	CreateFn func(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	RefundFn func(ctx context.Context, paymentIntentID string, amountMinor int64) (*ProviderRefund, error)
	ParseFn  func(payload []byte, signature string) (*PaymentEvent, error)
}

func (f *fakeProvider) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	f.mu.Lock()
	f.created = append(f.created, req)
	n := len(f.created)
	f.mu.Unlock()
	if f.CreateFn != nil {
		return f.CreateFn(ctx, req)
	}
	return &PaymentIntent{ID: fmt.Sprintf("pi_%d", n), ClientSecret: fmt.Sprintf("pi_%d_secret", n)}, nil
}

func (f *fakeProvider) CancelPaymentIntent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeProvider) CreateRefund(ctx context.Context, paymentIntentID string, amountMinor int64, _ string) (*ProviderRefund, error) {
	f.mu.Lock()
	f.refunds = append(f.refunds, amountMinor)
	n := len(f.refunds)
	f.mu.Unlock()
	if f.RefundFn != nil {
		return f.RefundFn(ctx, paymentIntentID, amountMinor)
	}
	return &ProviderRefund{ID: fmt.Sprintf("re_%d", n), AmountMinor: amountMinor, Status: "pending"}, nil
}

func (f *fakeProvider) ParseWebhook(_ context.Context, payload []byte, signature string) (*PaymentEvent, error) {
	if f.ParseFn != nil {
		return f.ParseFn(payload, signature)
	}
	return nil, Unauthorized("Invalid webhook signature")
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []EmailMessage
	SendFn func(msg EmailMessage) error
}

func (m *fakeMailer) Send(_ context.Context, msg EmailMessage) (string, error) {
	if m.SendFn != nil {
		if err := m.SendFn(msg); err != nil {
			return "", err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("email_%d", len(m.sent)), nil
}

type fakeDeadLetter struct {
	tasks []models.OutboxTask
}

func (d *fakeDeadLetter) Publish(_ context.Context, task models.OutboxTask) error {
	d.tasks = append(d.tasks, task)
	return nil
}

type fakeStore struct {
	uploads []string
	deleted []string
	Err     error
}

func (s *fakeStore) Upload(_ context.Context, file *multipart.FileHeader, folder string) (*StoredDocument, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	s.uploads = append(s.uploads, folder+"/"+file.Filename)
	return &StoredDocument{
		URL:      "https://files.example.com/" + folder + "/" + file.Filename,
		PublicID: folder + "/" + file.Filename,
	}, nil
}

func (s *fakeStore) Delete(_ context.Context, publicID string) error {
	s.deleted = append(s.deleted, publicID)
	return nil
}

func viewerFor(t *testing.T, p models.Profile) *Viewer {
	t.Helper()
	v, err := ViewerFromProfile(&p)
	if err != nil {
		t.Fatalf("viewer for %s: %v", p.FullName, err)
	}
	return v
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func wantKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	if !IsKind(err, kind) {
		t.Fatalf("expected error kind %d, got %v", kind, err)
	}
}

type fixture struct {
	db       *gorm.DB
	notify   *NotificationService
	emails   *EmailQueue
	admin    models.Profile
	operator models.Profile
	investor models.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	return &fixture{
		db:       db,
		notify:   NewNotificationService(db),
		emails:   NewEmailQueue(db, 3),
		admin:    testutil.CreateProfile(t, db, "Ada Admin", models.RoleAdmin),
		operator: testutil.CreateProfile(t, db, "Olly Operator", models.RoleOperator),
		investor: testutil.CreateProfile(t, db, "Ivy Investor", models.RoleInvestor),
	}
}

func (f *fixture) outboxCount(t *testing.T, template string) int64 {
	t.Helper()
	var tasks []models.OutboxTask
	if err := f.db.Find(&tasks).Error; err != nil {
		t.Fatalf("load outbox: %v", err)
	}
	var n int64
	for _, task := range tasks {
		if task.Payload != nil && containsTemplate(task.Payload, template) {
			n++
		}
	}
	return n
}

func containsTemplate(raw []byte, template string) bool {
	return bytes.Contains(raw, []byte(`"template":"`+template+`"`))
}


package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"DealRoom/internal/models"
)

func newTestWorker(t *testing.T, f *fixture, mailer Mailer, dlq DeadLetterPublisher) *OutboxWorker {
	t.Helper()
	templates, err := NewEmailTemplates("DealRoom", "https://app.example.com")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	return NewOutboxWorker(f.db, mailer, templates, dlq, time.Second, 10)
}

func TestOutboxDeliversQueuedEmail(t *testing.T) {
	f := newFixture(t)
	mailer := &fakeMailer{}
	w := newTestWorker(t, f, mailer, &fakeDeadLetter{})
	ctx := context.Background()

	f.emails.Enqueue(ctx, "ivy@example.com", TemplateWelcome, map[string]any{"Name": "Ivy", "Role": "investor"})

	res, err := w.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Delivered != 1 || len(mailer.sent) != 1 {
		t.Fatalf("delivered=%d sent=%d", res.Delivered, len(mailer.sent))
	}
	if mailer.sent[0].To != "ivy@example.com" || mailer.sent[0].Subject != "Welcome to DealRoom" {
		t.Fatalf("unexpected email %+v", mailer.sent[0])
	}

	res, _ = w.ProcessOnce(ctx)
	if res.Delivered != 0 {
		t.Fatal("delivered task sent twice")
	}
	if n := countRows(t, f.db, &models.OutboxTask{}, "delivered_at IS NOT NULL"); n != 1 {
		t.Fatalf("delivered rows: %d", n)
	}
}

func TestOutboxRetriesWithBackoffThenDeadLetters(t *testing.T) {
	f := newFixture(t)
	mailer := &fakeMailer{SendFn: func(EmailMessage) error { return errors.New("resend unavailable") }}
	dlq := &fakeDeadLetter{}
	w := newTestWorker(t, f, mailer, dlq)
	ctx := context.Background()

	clock := time.Now().UTC()
	w.now = func() time.Time { return clock }
	f.emails.now = func() time.Time { return clock }

	if _, err := f.emails.Push(ctx, EmailTask{To: "ivy@example.com", Template: TemplateWelcome}); err != nil {
		t.Fatalf("push: %v", err)
	}

	res, _ := w.ProcessOnce(ctx)
	if res.Retried != 1 {
		t.Fatalf("first attempt: %+v", res)
	}
	var task models.OutboxTask
	f.db.First(&task)
	if task.Attempts != 1 || !strings.Contains(task.LastError, "resend unavailable") {
		t.Fatalf("after first failure: %+v", task)
	}
	if !task.NextAttemptAt.After(clock.Add(29 * time.Second)) {
		t.Fatalf("retry not delayed: next=%s", task.NextAttemptAt)
	}

	if res, _ := w.ProcessOnce(ctx); res.Retried+res.Delivered+res.DeadLettered != 0 {
		t.Fatalf("task retried before backoff elapsed: %+v", res)
	}

	clock = clock.Add(31 * time.Second)
	if res, _ := w.ProcessOnce(ctx); res.Retried != 1 {
		t.Fatalf("second attempt: %+v", res)
	}

	clock = clock.Add(61 * time.Second)
	res, _ = w.ProcessOnce(ctx)
	if res.DeadLettered != 1 {
		t.Fatalf("third attempt should dead-letter (max 3): %+v", res)
	}
	if len(dlq.tasks) != 1 || dlq.tasks[0].Attempts != 3 {
		t.Fatalf("dead letter publish: %+v", dlq.tasks)
	}
	if n := countRows(t, f.db, &models.OutboxTask{}, "dead_lettered_at IS NOT NULL"); n != 1 {
		t.Fatalf("dead-lettered rows: %d", n)
	}

	clock = clock.Add(time.Hour)
	if res, _ := w.ProcessOnce(ctx); res.Retried+res.DeadLettered != 0 {
		t.Fatalf("dead-lettered task picked up again: %+v", res)
	}
}

func TestOutboxDeadLettersUnknownTemplateImmediately(t *testing.T) {
	f := newFixture(t)
	dlq := &fakeDeadLetter{}
	w := newTestWorker(t, f, &fakeMailer{}, dlq)
	ctx := context.Background()

	f.emails.Enqueue(ctx, "ivy@example.com", "no_such_template", nil)
	res, _ := w.ProcessOnce(ctx)
	if res.DeadLettered != 1 || len(dlq.tasks) != 1 {
		t.Fatalf("unknown template: %+v", res)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	w := &OutboxWorker{baseDelay: 30 * time.Second, maxDelay: 5 * time.Minute}
	want := []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute, 5 * time.Minute, 5 * time.Minute}
	for i, d := range want {
		if got := w.Backoff(i + 1); got != d {
			t.Fatalf("attempt %d: want %s, got %s", i+1, d, got)
		}
	}
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	if err := f.db.Migrator().DropTable(&models.OutboxTask{}); err != nil {
		t.Fatalf("drop: %v", err)
	}
	f.emails.Enqueue(context.Background(), "ivy@example.com", TemplateWelcome, nil)

	var nilQueue *EmailQueue
	nilQueue.Enqueue(context.Background(), "ivy@example.com", TemplateWelcome, nil)

	if _, err := NewEmailQueue(f.db, 0).Push(context.Background(), EmailTask{Template: TemplateWelcome}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
}

func TestOutboxClaimKeepsConcurrentWorkersApart(t *testing.T) {
	f := newFixture(t)
	first := &fakeMailer{}
	second := &fakeMailer{}
	inline := newTestWorker(t, f, first, &fakeDeadLetter{})
	standalone := newTestWorker(t, f, second, &fakeDeadLetter{})
	ctx := context.Background()

	clock := time.Now().UTC()
	inline.now = func() time.Time { return clock }
	standalone.now = func() time.Time { return clock }
	f.emails.now = func() time.Time { return clock }

	f.emails.Enqueue(ctx, "ivy@example.com", TemplateWelcome, map[string]any{"Name": "Ivy", "Role": "investor"})

	claimed, err := inline.claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ClaimToken == "" {
		t.Fatalf("claimed %+v", claimed)
	}

	res, err := standalone.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.Delivered != 0 || len(second.sent) != 0 {
		t.Fatalf("claimed task sent by a second worker: %+v", res)
	}

	// The first worker never finished, so the row comes back after the lease.
	clock = clock.Add(inline.lease + time.Second)
	res, err = standalone.ProcessOnce(ctx)
	if err != nil {
		t.Fatalf("process after lease: %v", err)
	}
	if res.Delivered != 1 || len(second.sent) != 1 || len(first.sent) != 0 {
		t.Fatalf("after lease: %+v first=%d second=%d", res, len(first.sent), len(second.sent))
	}
	if n := countRows(t, f.db, &models.OutboxTask{}, "delivered_at IS NOT NULL"); n != 1 {
		t.Fatalf("delivered rows: %d", n)
	}
}

package forms

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/formbase/formbase/internal/db"
	"github.com/formbase/formbase/internal/models"
	"gorm.io/gorm"
)

func openFormsTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:forms_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := db.Open(dsn)
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate db: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, email string) uint64 {
	t.Helper()
	user := models.User{Email: email}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	return user.ID
}

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func TestMergeKeysKeepsOrderAndNeverShrinks(t *testing.T) {
	got := MergeKeys([]string{"name", "email"}, []string{"message", "email", "phone", "message"})
	want := []string{"name", "email", "message", "phone"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := MergeKeys([]string{"a", "b"}, nil); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected existing keys kept, got %v", got)
	}
}

func TestCreateFormDefaultsAndExplicitFalse(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	userID := createUser(t, conn, "a@example.com")

	form, err := svc.CreateForm(ctx, userID, CreateFormInput{Title: " Contact "})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if form.Title != "Contact" || !form.EnableSubmissions || form.EnableEmailNotifications {
		t.Fatalf("unexpected defaults %+v", form)
	}
	if len(form.KeyList()) != 0 {
		t.Fatalf("expected empty keys, got %v", form.KeyList())
	}

	closed, err := svc.CreateForm(ctx, userID, CreateFormInput{Title: "Closed", EnableSubmissions: boolPtr(false)})
	if err != nil {
		t.Fatalf("create closed form: %v", err)
	}
	reloaded, err := svc.GetForm(ctx, userID, closed.ID)
	if err != nil {
		t.Fatalf("get closed form: %v", err)
	}
	if reloaded.EnableSubmissions {
		t.Fatalf("expected enable_submissions=false to persist")
	}
}

func TestOwnershipIsolation(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	owner := createUser(t, conn, "owner@example.com")
	other := createUser(t, conn, "other@example.com")

	form, err := svc.CreateForm(ctx, owner, CreateFormInput{Title: "Private"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	sub, err := svc.RecordSubmission(ctx, NewSubmission{FormID: form.ID, Data: map[string]any{"a": "1"}})
	if err != nil {
		t.Fatalf("record submission: %v", err)
	}

	if _, err := svc.GetForm(ctx, other, form.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.UpdateForm(ctx, other, form.ID, UpdateFormInput{Title: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteForm(ctx, other, form.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ListSubmissions(ctx, other, form.ID, ListOptions{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("list submissions: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetSubmission(ctx, other, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get submission: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.UpdateSpam(ctx, other, sub.ID, true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update spam: expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteSubmission(ctx, other, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete submission: expected ErrNotFound, got %v", err)
	}
	if n, err := svc.DeleteSubmissions(ctx, other, []uint64{sub.ID}); err != nil || n != 0 {
		t.Fatalf("bulk delete: expected 0 deleted, got %d (%v)", n, err)
	}

	list, err := svc.ListForms(ctx, other, "")
	if err != nil {
		t.Fatalf("list forms: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected other user to see no forms, got %d", len(list))
	}
	if _, err := svc.GetSubmission(ctx, owner, sub.ID); err != nil {
		t.Fatalf("expected owner's submission to survive: %v", err)
	}
}

func TestRecordSubmissionKeysAreSuperset(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	userID := createUser(t, conn, "keys@example.com")
	form, _ := svc.CreateForm(ctx, userID, CreateFormInput{Title: "Keys"})
	before := form.UpdatedAt

	time.Sleep(5 * time.Millisecond)
	if _, err := svc.RecordSubmission(ctx, NewSubmission{
		FormID:     form.ID,
		Data:       map[string]any{"name": "Ada", "email": "ada@example.com"},
		FieldOrder: []string{"name", "email"},
	}); err != nil {
		t.Fatalf("record first: %v", err)
	}
	if _, err := svc.RecordSubmission(ctx, NewSubmission{
		FormID: form.ID,
		Data:   map[string]any{"message": "hi", "email": "x@example.com"},
	}); err != nil {
		t.Fatalf("record second: %v", err)
	}

	reloaded, err := svc.GetForm(ctx, userID, form.ID)
	if err != nil {
		t.Fatalf("reload form: %v", err)
	}
	want := []string{"name", "email", "message"}
	if !reflect.DeepEqual(reloaded.KeyList(), want) {
		t.Fatalf("expected keys %v, got %v", want, reloaded.KeyList())
	}
	if !reloaded.UpdatedAt.After(before) {
		t.Fatalf("expected updated_at to advance")
	}
}

func TestRecordSubmissionUnknownForm(t *testing.T) {
	svc := NewService(openFormsTestDB(t))
	_, err := svc.RecordSubmission(context.Background(), NewSubmission{FormID: "missing", Data: map[string]any{"a": 1}})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteFormCascades(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	userID := createUser(t, conn, "cascade@example.com")
	form, _ := svc.CreateForm(ctx, userID, CreateFormInput{Title: "Gone"})
	for i := 0; i < 3; i++ {
		if _, err := svc.RecordSubmission(ctx, NewSubmission{FormID: form.ID, Data: map[string]any{"i": i}}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if err := svc.DeleteForm(ctx, userID, form.ID); err != nil {
		t.Fatalf("delete form: %v", err)
	}
	var count int64
	conn.Model(&models.FormData{}).Where("form_id = ?", form.ID).Count(&count)
	if count != 0 {
		t.Fatalf("expected no submissions left, got %d", count)
	}
	if _, err := svc.GetForm(ctx, userID, form.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected form gone, got %v", err)
	}
}

func TestListSubmissionsPaginationAndSpamFilter(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	userID := createUser(t, conn, "page@example.com")
	form, _ := svc.CreateForm(ctx, userID, CreateFormInput{Title: "Paged"})

	for i := 0; i < 5; i++ {
		if _, err := svc.RecordSubmission(ctx, NewSubmission{FormID: form.ID, Data: map[string]any{"i": i}, IsSpam: i == 4, SpamReason: "honeypot"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	page, err := svc.ListSubmissions(ctx, userID, form.ID, ListOptions{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 {
		t.Fatalf("expected total 5 with 2 items, got %d/%d", page.Total, len(page.Items))
	}

	notSpam, err := svc.ListSubmissions(ctx, userID, form.ID, ListOptions{Spam: boolPtr(false), Limit: 50})
	if err != nil {
		t.Fatalf("list non-spam: %v", err)
	}
	if notSpam.Total != 4 {
		t.Fatalf("expected 4 non-spam, got %d", notSpam.Total)
	}

	stats, err := svc.FormStats(ctx, userID, form.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 5 || stats.Spam != 1 || stats.Last7Days != 5 || stats.LastSubmissionAt == nil {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestUpdateSpamSetsManualOverride(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	userID := createUser(t, conn, "spam@example.com")
	form, _ := svc.CreateForm(ctx, userID, CreateFormInput{Title: "Spam"})
	sub, _ := svc.RecordSubmission(ctx, NewSubmission{FormID: form.ID, Data: map[string]any{"a": "b"}})

	updated, err := svc.UpdateSpam(ctx, userID, sub.ID, true)
	if err != nil {
		t.Fatalf("update spam: %v", err)
	}
	if !updated.IsSpam || !updated.ManualOverride || updated.SpamReason != "manual" {
		t.Fatalf("unexpected submission %+v", updated)
	}

	n, err := svc.DeleteSubmissions(ctx, userID, []uint64{sub.ID, 999})
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deleted, got %d (%v)", n, err)
	}
}

func TestListFormsCountsAndSearch(t *testing.T) {
	conn := openFormsTestDB(t)
	svc := NewService(conn)
	ctx := context.Background()
	userID := createUser(t, conn, "list@example.com")
	contact, _ := svc.CreateForm(ctx, userID, CreateFormInput{Title: "Contact us"})
	_, _ = svc.CreateForm(ctx, userID, CreateFormInput{Title: "Newsletter 100%"})
	_, _ = svc.RecordSubmission(ctx, NewSubmission{FormID: contact.ID, Data: map[string]any{"a": 1}})

	all, err := svc.ListForms(ctx, userID, "")
	if err != nil {
		t.Fatalf("list forms: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 forms, got %d", len(all))
	}
	for _, f := range all {
		if f.ID == contact.ID && f.SubmissionCount != 1 {
			t.Fatalf("expected 1 submission for contact, got %d", f.SubmissionCount)
		}
	}

	found, err := svc.ListForms(ctx, userID, "CONTACT")
	if err != nil {
		t.Fatalf("search forms: %v", err)
	}
	if len(found) != 1 || found[0].ID != contact.ID {
		t.Fatalf("expected case-insensitive match on contact, got %+v", found)
	}
	percent, _ := svc.ListForms(ctx, userID, "0%")
	if len(percent) != 1 {
		t.Fatalf("expected literal percent match, got %d", len(percent))
	}
}

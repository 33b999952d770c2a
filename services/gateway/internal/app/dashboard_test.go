package app

import (
	"context"
	"errors"
	"testing"
)

func TestDashboardEntryLifecycle(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	ctx := context.Background()
	entry, err := env.app.CreateEntry(ctx, alice, EntryInput{Title: "Week 1", Content: "notes", SubjectID: "0123456789abcdef01234567"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	doc := env.upload(t, alice, "a.txt", "text")
	for i := 0; i < 2; i++ {
		if err := env.app.AttachFile(ctx, alice, entry.ID, doc.StoredName); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}
	updated, err := env.app.UpdateEntry(ctx, alice, entry.ID, EntryInput{Title: "Week 1 (final)"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Week 1 (final)" || updated.SubjectID != "" {
		t.Fatalf("updated = %+v", updated)
	}
	if len(updated.FileIDs) != 1 || updated.FileIDs[0] != doc.StoredName {
		t.Fatalf("file ids = %v, want [%s]", updated.FileIDs, doc.StoredName)
	}
	entries, _ := env.app.ListEntries(ctx, alice)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if err := env.app.DeleteEntry(ctx, alice, entry.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var notFound *NotFoundError
	if err := env.app.DeleteEntry(ctx, alice, entry.ID); !errors.As(err, &notFound) {
		t.Fatalf("second delete error = %v, want *NotFoundError", err)
	}
}

func TestDashboardValidation(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	ctx := context.Background()
	var validation *ValidationError
	if _, err := env.app.CreateEntry(ctx, alice, EntryInput{Title: " "}); !errors.As(err, &validation) {
		t.Fatalf("blank title error = %v, want ValidationError", err)
	}
	if _, err := env.app.CreateEntry(ctx, alice, EntryInput{Title: "t", SubjectID: "not-hex"}); !errors.As(err, &validation) || validation.Field != "subjectId" {
		t.Fatalf("bad subject error = %v, want subjectId ValidationError", err)
	}
	for _, id := range []string{"", "123", "zzzzzzzzzzzzzzzzzzzzzzzz"} {
		if err := env.app.DeleteEntry(ctx, alice, id); !errors.As(err, &validation) {
			t.Fatalf("DeleteEntry(%q) error = %v, want ValidationError", id, err)
		}
	}
}

func TestDashboardScopedToCreator(t *testing.T) {
	env := newTestEnv(t, answer("unused"))
	ctx := context.Background()
	entry, _ := env.app.CreateEntry(ctx, alice, EntryInput{Title: "mine"})
	bobDoc := env.upload(t, bob, "b.txt", "text")

	var notFound *NotFoundError
	if _, err := env.app.UpdateEntry(ctx, bob, entry.ID, EntryInput{Title: "stolen"}); !errors.As(err, &notFound) {
		t.Fatalf("bob update error = %v, want *NotFoundError", err)
	}
	if err := env.app.AttachFile(ctx, bob, entry.ID, bobDoc.StoredName); !errors.As(err, &notFound) || notFound.Kind != "entry" {
		t.Fatalf("bob attach error = %v, want entry NotFoundError", err)
	}
	if err := env.app.AttachFile(ctx, alice, entry.ID, bobDoc.StoredName); !errors.As(err, &notFound) || notFound.Kind != "document" {
		t.Fatalf("attach of bob's document error = %v, want document NotFoundError", err)
	}
	if entries, _ := env.app.ListEntries(ctx, bob); len(entries) != 0 {
		t.Fatalf("bob sees %d entries", len(entries))
	}
}

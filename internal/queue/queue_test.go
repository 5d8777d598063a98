package queue

import (
	"testing"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/model"
)

func change(seq, articleID int64, field model.Field, value bool) model.PendingChange {
	return model.PendingChange{
		Seq:       seq,
		ArticleID: articleID,
		FeedID:    10,
		GUIDHash:  "hash",
		Field:     field,
		Value:     value,
	}
}

func TestDrainEmpty(t *testing.T) {
	q := New(100)
	batches, err := q.Drain(nil, model.FieldRead)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("expected no batches, got %d", len(batches))
	}
}

func TestDrainSplitsOnBatchSize(t *testing.T) {
	q := New(2)
	changes := []model.PendingChange{
		change(1, 100, model.FieldRead, true),
		change(2, 101, model.FieldRead, true),
		change(3, 102, model.FieldRead, true),
	}

	batches, err := q.Drain(changes, model.FieldRead)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(batches))
	}
	if len(batches[0].Changes) != 2 || len(batches[1].Changes) != 1 {
		t.Errorf("batch sizes = %d/%d, want 2/1",
			len(batches[0].Changes), len(batches[1].Changes))
	}

	// Queuing order preserved across batches.
	got := append(batches[0].Seqs(), batches[1].Seqs()...)
	for i, want := range []int64{1, 2, 3} {
		if got[i] != want {
			t.Errorf("seq order[%d] = %d, want %d", i, got[i], want)
		}
	}
}

func TestDrainSplitsOnValueFlip(t *testing.T) {
	q := New(100)
	changes := []model.PendingChange{
		change(1, 100, model.FieldStar, true),
		change(2, 101, model.FieldStar, true),
		change(3, 102, model.FieldStar, false),
	}

	batches, err := q.Drain(changes, model.FieldStar)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected 2 batches (star then unstar), got %d", len(batches))
	}
	if !batches[0].Value || batches[1].Value {
		t.Errorf("batch values = %v/%v, want true/false",
			batches[0].Value, batches[1].Value)
	}
}

func TestDrainIsDeterministic(t *testing.T) {
	q := New(2)
	changes := []model.PendingChange{
		change(1, 100, model.FieldRead, true),
		change(2, 101, model.FieldRead, false),
		change(3, 102, model.FieldRead, true),
	}

	first, err := q.Drain(changes, model.FieldRead)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	second, err := q.Drain(changes, model.FieldRead)
	if err != nil {
		t.Fatalf("Drain failed: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("retried drain produced %d batches, first produced %d",
			len(second), len(first))
	}
	for i := range first {
		a, b := first[i].Seqs(), second[i].Seqs()
		if len(a) != len(b) {
			t.Fatalf("batch %d sizes differ between drains", i)
		}
		for j := range a {
			if a[j] != b[j] {
				t.Errorf("batch %d seq[%d] differs: %d vs %d", i, j, a[j], b[j])
			}
		}
	}
}

func TestDrainRejectsInvalidChange(t *testing.T) {
	q := New(100)

	// Non-positive article ID means the article was never created
	// server-side; pushing it would be a client mistake.
	bad := change(1, -5, model.FieldRead, true)
	_, err := q.Drain([]model.PendingChange{bad}, model.FieldRead)
	if err == nil {
		t.Fatal("expected validation error for negative article id")
	}
	if fault.KindOf(err) != fault.KindValidation {
		t.Errorf("kind = %v, want %v", fault.KindOf(err), fault.KindValidation)
	}

	// Star changes need a guid hash.
	noHash := change(2, 100, model.FieldStar, true)
	noHash.GUIDHash = ""
	_, err = q.Drain([]model.PendingChange{noHash}, model.FieldStar)
	if fault.KindOf(err) != fault.KindValidation {
		t.Errorf("kind = %v, want %v", fault.KindOf(err), fault.KindValidation)
	}
}

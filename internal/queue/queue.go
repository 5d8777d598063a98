// Package queue batches unflushed local mutations for pushing.
//
// The queue is a derived view over the store's pending changes: it does
// not persist anything itself. Draining is stable — changes are batched
// in ascending queuing order — so a retried run re-sends the same
// batches. Batches are all-or-nothing: a failed push leaves every change
// of that batch pending for the next run.
package queue

import (
	"fmt"

	"github.com/mlindgren/feedsync/internal/fault"
	"github.com/mlindgren/feedsync/internal/model"
)

// DefaultBatchSize caps one push request at the count the News API
// accepts comfortably.
const DefaultBatchSize = 1000

// Batch is one push-sized group of pending changes sharing a field and a
// desired value, in queuing order.
type Batch struct {
	Field   model.Field
	Value   bool
	Changes []model.PendingChange
}

// Seqs returns the store sequence numbers of the batch, used to clear
// the changes once the push is confirmed.
func (b *Batch) Seqs() []int64 {
	seqs := make([]int64, len(b.Changes))
	for i, c := range b.Changes {
		seqs[i] = c.Seq
	}
	return seqs
}

// ArticleIDs returns the article identifiers of the batch.
func (b *Batch) ArticleIDs() []int64 {
	ids := make([]int64, len(b.Changes))
	for i, c := range b.Changes {
		ids[i] = c.ArticleID
	}
	return ids
}

// Queue groups pending changes into push batches.
type Queue struct {
	batchSize int
}

// New creates a queue with the given maximum batch size. A size of 0 or
// less selects DefaultBatchSize.
func New(batchSize int) *Queue {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Queue{batchSize: batchSize}
}

// Drain splits pending changes of one field into batches.
//
// The changes must already be in ascending queuing order (the store
// returns them that way). A new batch starts whenever the desired value
// flips — read and unread marks go to different server endpoints — or
// the current batch is full. Order is preserved across batches.
//
// Every change is validated before batching; a change referencing an
// unpushable article fails the whole drain with a Validation error so
// the caller never wastes a round trip.
func (q *Queue) Drain(changes []model.PendingChange, field model.Field) ([]Batch, error) {
	var batches []Batch
	var current *Batch

	for i := range changes {
		c := changes[i]
		if c.Field != field {
			return nil, fmt.Errorf("change for article %d has field %s, want %s",
				c.ArticleID, c.Field, field)
		}
		if err := c.Validate(); err != nil {
			key := "validation.article-id"
			if field == model.FieldStar {
				key = "validation.guid-hash"
			}
			return nil, fmt.Errorf("unpushable change for article %d: %w",
				c.ArticleID, fault.Validation(key))
		}

		if current == nil || current.Value != c.Value || len(current.Changes) >= q.batchSize {
			batches = append(batches, Batch{Field: field, Value: c.Value})
			current = &batches[len(batches)-1]
		}
		current.Changes = append(current.Changes, c)
	}

	return batches, nil
}

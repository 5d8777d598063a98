package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mlindgren/feedsync/internal/model"
)

// setupBenchStore populates a cache with numArticles articles spread
// over ten feeds, approximating a well-used reader database.
func setupBenchStore(b *testing.B, numArticles int) *SQLite {
	b.Helper()

	s, err := Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("failed to open bench database: %v", err)
	}
	b.Cleanup(func() { s.Close() })
	if err := s.InitSchema(); err != nil {
		b.Fatalf("failed to initialize schema: %v", err)
	}

	ctx := context.Background()
	tx, err := s.Begin(ctx)
	if err != nil {
		b.Fatal(err)
	}

	feeds := make([]model.Feed, 10)
	for i := range feeds {
		feeds[i] = model.Feed{
			ID:  int64(i + 1),
			URL: fmt.Sprintf("https://example.com/feed-%d", i),
		}
	}
	if err := tx.UpsertFeeds(ctx, feeds); err != nil {
		b.Fatal(err)
	}

	articles := make([]model.Article, numArticles)
	for i := range articles {
		articles[i] = model.Article{
			ID:           int64(i + 1),
			FeedID:       int64(i%10 + 1),
			GUIDHash:     fmt.Sprintf("hash-%d", i),
			Title:        fmt.Sprintf("Article %d", i),
			Unread:       i%3 != 0,
			LastModified: int64(1000 + i),
		}
	}
	if err := tx.UpsertArticles(ctx, articles); err != nil {
		b.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		b.Fatal(err)
	}

	return s
}

func BenchmarkUpsertArticles(b *testing.B) {
	s := setupBenchStore(b, 0)
	ctx := context.Background()

	batch := make([]model.Article, 1000)
	for i := range batch {
		batch[i] = model.Article{
			ID:           int64(i + 1),
			FeedID:       int64(i%10 + 1),
			GUIDHash:     fmt.Sprintf("hash-%d", i),
			Unread:       true,
			LastModified: int64(i),
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := s.Begin(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if err := tx.UpsertArticles(ctx, batch); err != nil {
			b.Fatal(err)
		}
		if err := tx.Commit(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMarkArticle(b *testing.B) {
	s := setupBenchStore(b, 10000)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := int64(i%10000 + 1)
		if err := s.MarkArticle(ctx, id, model.FieldRead, i%2 == 0); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentReads(b *testing.B) {
	s := setupBenchStore(b, 10000)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			id := int64(i%10000 + 1)
			if _, err := s.GetArticle(ctx, id); err != nil {
				b.Fatal(err)
			}
			i++
		}
	})
}

func BenchmarkPendingChangesDrainScan(b *testing.B) {
	s := setupBenchStore(b, 5000)
	ctx := context.Background()

	for i := 1; i <= 2000; i++ {
		if err := s.MarkArticle(ctx, int64(i), model.FieldRead, true); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		changes, err := s.PendingChanges(ctx, model.FieldRead)
		if err != nil {
			b.Fatal(err)
		}
		if len(changes) != 2000 {
			b.Fatalf("unexpected pending count %d", len(changes))
		}
	}
}

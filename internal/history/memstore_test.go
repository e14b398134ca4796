package history_test

import (
	"context"
	"sync"
	"testing"

	"github.com/akshaymakw8/Realtime-Voice-Agent/internal/history"
)

func TestMemStoreAppendAndRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := history.NewMemStore()

	entries := []history.Entry{
		{Role: history.RoleUser, Text: "hello"},
		{Role: history.RoleAssistant, Text: "hi there", AgentID: "general_assistant"},
		{Role: history.RoleUser, Text: "switch topic"},
	}
	for _, e := range entries {
		if err := s.Append(ctx, "client-1", e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "client-1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	for i := range entries {
		if got[i].Text != entries[i].Text || got[i].Role != entries[i].Role {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], entries[i])
		}
		if got[i].CreatedAt.IsZero() {
			t.Errorf("entry %d has zero timestamp", i)
		}
	}
}

func TestMemStoreRecentLimitKeepsNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := history.NewMemStore()
	texts := []string{"a", "b", "c", "d"}
	for _, txt := range texts {
		if err := s.Append(ctx, "c1", history.Entry{Role: history.RoleUser, Text: txt}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "c1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Text != "c" || got[1].Text != "d" {
		t.Errorf("limited read = %+v, want newest two in order", got)
	}
}

func TestMemStoreIsolatesClients(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := history.NewMemStore()
	if err := s.Append(ctx, "c1", history.Entry{Role: history.RoleUser, Text: "one"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Recent(ctx, "c2", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("client c2 sees %d entries from c1", len(got))
	}
}

func TestMemStoreConcurrentAppends(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := history.NewMemStore()

	const goroutines = 8
	const perGoroutine = 25

	var wg sync.WaitGroup
	for range goroutines {
		wg.Go(func() {
			for range perGoroutine {
				_ = s.Append(ctx, "shared", history.Entry{Role: history.RoleUser, Text: "x"})
			}
		})
	}
	wg.Wait()

	got, err := s.Recent(ctx, "shared", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != goroutines*perGoroutine {
		t.Errorf("got %d entries, want %d", len(got), goroutines*perGoroutine)
	}
}

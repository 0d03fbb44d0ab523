package enrich

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bakkerme/curator-streams/internal/core"
)

func TestApplyUnionsListsFromAuthorMentionsAndReference(t *testing.T) {
	snapshot := &Snapshot{
		Lists: map[string][]string{
			"author":  {"press", "eu"},
			"mention": {"politics"},
			"ref":     {"eu", "sports"},
		},
		Categories: map[string]core.Category{"author": "media"},
	}
	item := &core.Item{ID: "1", UserID: "author", Mentions: []string{"mention", "unknown"}, ReferencedUserID: "ref"}

	snapshot.Apply(item)

	want := []string{"eu", "politics", "press", "sports"}
	if len(item.Lists) != len(want) {
		t.Fatalf("expected lists %v, got %v", want, item.Lists)
	}
	for i := range want {
		if item.Lists[i] != want[i] {
			t.Fatalf("expected lists %v, got %v", want, item.Lists)
		}
	}
	if item.Category != "media" {
		t.Fatalf("expected category media, got %q", item.Category)
	}
}

func TestApplyWithoutMatchesLeavesItemUntouched(t *testing.T) {
	snapshot := &Snapshot{Lists: map[string][]string{"someone": {"x"}}}
	item := &core.Item{ID: "1", UserID: "nobody"}
	snapshot.Apply(item)
	if item.Lists != nil || item.Category != "" {
		t.Fatalf("expected no enrichment, got lists=%v category=%q", item.Lists, item.Category)
	}

	var nilSnapshot *Snapshot
	nilSnapshot.Apply(item)
}

func TestDirectorySwapIsAtomic(t *testing.T) {
	first := &Snapshot{Lists: map[string][]string{"u": {"a"}}}
	second := &Snapshot{Lists: map[string][]string{"u": {"b"}}}
	dir := NewDirectory(first)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := dir.Snapshot()
				if s != first && s != second {
					t.Errorf("observed a snapshot that was never published")
					return
				}
			}
		}()
	}
	if prev := dir.Swap(second); prev != first {
		t.Fatalf("expected swap to return previous snapshot")
	}
	wg.Wait()

	if dir.Snapshot() != second {
		t.Fatalf("expected second snapshot to be current")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "directory.yaml")
	data := []byte(`
lists:
  "42": ["journalists", "greece"]
  "43": ["greece"]
categories:
  "42": "media"
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	snapshot, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	users, lists := snapshot.Counts()
	if users != 2 || lists != 2 {
		t.Fatalf("expected 2 users in 2 lists, got %d users in %d lists", users, lists)
	}
	if snapshot.Categories["42"] != "media" {
		t.Fatalf("expected category media, got %q", snapshot.Categories["42"])
	}
}

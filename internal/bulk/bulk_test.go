package bulk

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"atelier/internal/catalog"
)

func seed(t *testing.T, n int, tags ...string) (*catalog.MemoryStore, []string) {
	t.Helper()
	store := catalog.NewMemoryStore()
	entries := make([]catalog.Entry, n)
	ids := make([]string, n)
	for i := range entries {
		rel := fmt.Sprintf("clip%03d.mp4", i)
		entries[i] = catalog.Entry{
			ID:           catalog.EntryID("m", rel),
			MountID:      "m",
			RelativePath: rel,
			Filename:     rel,
			SourceKind:   catalog.SourceHandle,
			Tags:         catalog.NormalizeTags(tags),
			AddedAt:      int64(i),
		}
		ids[i] = entries[i].ID
	}
	if err := store.BulkPut(context.Background(), entries); err != nil {
		t.Fatal(err)
	}
	return store, ids
}

func get(t *testing.T, s *catalog.MemoryStore, id string) catalog.Entry {
	t.Helper()
	e, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return e
}

// countingStore records BulkPut batch sizes.
type countingStore struct {
	*catalog.MemoryStore
	batches []int
	failAt  int
}

func (s *countingStore) BulkPut(ctx context.Context, entries []catalog.Entry) error {
	if s.failAt > 0 && len(s.batches)+1 == s.failAt {
		return errors.New("database is locked")
	}
	s.batches = append(s.batches, len(entries))
	return s.MemoryStore.BulkPut(ctx, entries)
}

func TestApplyActions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		action Action
		tag    string
		check  func(catalog.Entry) bool
	}{
		{"add tag", AddTag, " #New Tag", func(e catalog.Entry) bool { return e.HasTag("new-tag") && e.HasTag("old") }},
		{"remove tag", RemoveTag, "OLD", func(e catalog.Entry) bool { return len(e.Tags) == 0 }},
		{"favorite", Favorite, "", func(e catalog.Entry) bool { return e.Favorite }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, ids := seed(t, 3, "old")
			ed := New(store, Config{ChunkSize: 2})

			out, err := ed.Apply(context.Background(), ids, tt.action, tt.tag)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if out.Changed != 3 || out.NotFound != 0 {
				t.Errorf("Outcome = %+v", out)
			}
			for _, id := range ids {
				if e := get(t, store, id); !tt.check(e) {
					t.Errorf("entry %s after %s = %+v", id, tt.action, e)
				}
			}
		})
	}
}

func TestApplySkipsUnchangedAndMissing(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 2, "keep")
	ed := New(store, Config{})
	ctx := context.Background()

	if _, err := catalog.SetTitleOverride(ctx, store, ids[0], "Named"); err != nil {
		t.Fatal(err)
	}

	out, err := ed.Apply(ctx, []string{ids[0], ids[1], ids[1], "m::ghost.mp4"}, ClearTitle, "")
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := Outcome{Action: ClearTitle, Requested: 3, Changed: 1, NotFound: 1}
	if out != want {
		t.Errorf("Outcome = %+v, want %+v", out, want)
	}
	if e := get(t, store, ids[0]); e.TitleOverride != "" {
		t.Errorf("TitleOverride = %q, want cleared", e.TitleOverride)
	}
}

func TestApplyInvalid(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 1)
	ed := New(store, Config{})

	for _, tc := range []struct {
		action Action
		tag    string
	}{
		{"explode", ""},
		{AddTag, "   "},
		{RemoveTag, "#"},
	} {
		if _, err := ed.Apply(context.Background(), ids, tc.action, tc.tag); !errors.Is(err, ErrInvalidAction) {
			t.Errorf("Apply(%s, %q) error = %v, want ErrInvalidAction", tc.action, tc.tag, err)
		}
	}
}

func TestChunking(t *testing.T) {
	t.Parallel()

	mem, ids := seed(t, 120)
	store := &countingStore{MemoryStore: mem}
	ed := New(store, Config{ChunkSize: 50})

	if _, err := ed.Apply(context.Background(), ids, Favorite, ""); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(store.batches, []int{50, 50, 20}) {
		t.Errorf("batches = %v, want [50 50 20]", store.batches)
	}
}

func TestInterruptedOperationKeepsCommittedChunks(t *testing.T) {
	t.Parallel()

	mem, ids := seed(t, 5)
	store := &countingStore{MemoryStore: mem, failAt: 3}
	ed := New(store, Config{ChunkSize: 2})
	ctx := context.Background()

	out, err := ed.Apply(ctx, ids, Favorite, "")
	if err == nil {
		t.Fatal("Apply() succeeded, want chunk failure")
	}
	if out.Changed != 4 {
		t.Errorf("Changed = %d, want 4", out.Changed)
	}
	if get(t, mem, ids[4]).Favorite {
		t.Error("entry from the failed chunk was written")
	}

	info, ok := ed.LastAction()
	if !ok || info.Entries != 4 {
		t.Fatalf("LastAction() = %+v, %v; want 4 entries", info, ok)
	}

	store.failAt = 0
	if _, err := ed.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	for _, id := range ids {
		if get(t, mem, id).Favorite {
			t.Errorf("%s still favorite after undo", id)
		}
	}
}

func TestRenameTagMerges(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 3, "kitten")
	ctx := context.Background()
	if _, err := catalog.AddTag(ctx, store, ids[0], "cat"); err != nil {
		t.Fatal(err)
	}
	ed := New(store, Config{})

	out, err := ed.RenameTag(ctx, "Kitten", "#cat")
	if err != nil {
		t.Fatalf("RenameTag() error = %v", err)
	}
	if out.Changed != 3 {
		t.Errorf("Changed = %d, want 3", out.Changed)
	}
	for _, id := range ids {
		if got := get(t, store, id).Tags; !reflect.DeepEqual(got, []string{"cat"}) {
			t.Errorf("%s tags = %v, want [cat]", id, got)
		}
	}

	if _, err := ed.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if got := get(t, store, ids[0]).Tags; !reflect.DeepEqual(got, []string{"cat", "kitten"}) {
		t.Errorf("restored tags = %v, want [cat kitten]", got)
	}
	if got := get(t, store, ids[1]).Tags; !reflect.DeepEqual(got, []string{"kitten"}) {
		t.Errorf("restored tags = %v, want [kitten]", got)
	}
}

func TestDeleteTag(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 4, "tmp", "keep")
	ed := New(store, Config{ChunkSize: 3})

	out, err := ed.DeleteTag(context.Background(), "tmp")
	if err != nil {
		t.Fatalf("DeleteTag() error = %v", err)
	}
	if out.Changed != 4 {
		t.Errorf("Changed = %d, want 4", out.Changed)
	}
	for _, id := range ids {
		if got := get(t, store, id).Tags; !reflect.DeepEqual(got, []string{"keep"}) {
			t.Errorf("tags = %v", got)
		}
	}
}

func TestUndo(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 3)
	ed := New(store, Config{})
	ctx := context.Background()

	if _, err := ed.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("Undo() on fresh editor error = %v, want ErrNothingToUndo", err)
	}

	if _, err := ed.Apply(ctx, ids[:2], AddTag, "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := ed.Apply(ctx, ids, AddTag, "second"); err != nil {
		t.Fatal(err)
	}

	info, ok := ed.LastAction()
	if !ok || info.Action != AddTag || info.Entries != 3 || info.Detail != "second" {
		t.Errorf("LastAction() = %+v, %v", info, ok)
	}

	out, err := ed.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if out.Changed != 3 {
		t.Errorf("Undo changed %d, want 3", out.Changed)
	}
	// only the last action is reverted
	if got := get(t, store, ids[0]).Tags; !reflect.DeepEqual(got, []string{"first"}) {
		t.Errorf("tags = %v, want [first]", got)
	}
	if _, ok := ed.LastAction(); ok {
		t.Error("LastAction() still set after undo")
	}
}

func TestUndoRestoresWholeRecords(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 2)
	ed := New(store, Config{})
	ctx := context.Background()

	if _, err := ed.Apply(ctx, ids, Favorite, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := catalog.SetTitleOverride(ctx, store, ids[0], "Renamed later"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, ids[1]); err != nil {
		t.Fatal(err)
	}

	if _, err := ed.Undo(ctx); err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	first := get(t, store, ids[0])
	if first.Favorite || first.TitleOverride != "" {
		t.Errorf("first = favorite %v, title %q; want the pre-action record", first.Favorite, first.TitleOverride)
	}
	if second := get(t, store, ids[1]); second.Favorite {
		t.Error("deleted entry came back with the post-action state")
	}
}

func TestUpdateAfterDeleteWritesBack(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 1)
	ctx := context.Background()

	_, err := catalog.Update(ctx, store, ids[0], func(e *catalog.Entry) {
		if err := store.Delete(ctx, e.ID); err != nil {
			t.Error(err)
		}
		e.Favorite = true
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !get(t, store, ids[0]).Favorite {
		t.Error("entry deleted during Update was not written back")
	}
}

func TestNoopDoesNotReplaceUndo(t *testing.T) {
	t.Parallel()

	store, ids := seed(t, 2)
	ed := New(store, Config{})
	ctx := context.Background()

	if _, err := ed.Apply(ctx, ids, Favorite, ""); err != nil {
		t.Fatal(err)
	}
	out, err := ed.Apply(ctx, ids, Favorite, "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Changed != 0 {
		t.Errorf("Changed = %d, want 0", out.Changed)
	}
	if info, ok := ed.LastAction(); !ok || info.Entries != 2 {
		t.Errorf("LastAction() = %+v, %v", info, ok)
	}
}

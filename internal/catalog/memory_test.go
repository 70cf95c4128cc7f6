package catalog

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newEntry(mountID, rel string, addedAt int64) Entry {
	return Entry{
		ID:           EntryID(mountID, rel),
		MountID:      mountID,
		RelativePath: rel,
		Filename:     rel,
		SourceKind:   SourceHandle,
		SourceRef:    "/media/" + rel,
		Tags:         []string{},
		AddedAt:      addedAt,
	}
}

func TestMemoryStoreGetPutDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	e := newEntry("m", "a.mp4", 1)
	if err := s.Put(ctx, e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Filename != "a.mp4" {
		t.Errorf("Filename = %q", got.Filename)
	}

	if err := s.Delete(ctx, e.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	entries := []Entry{
		newEntry("m1", "c.mp4", 30),
		newEntry("m1", "b.mp4", 10),
		newEntry("m2", "z.mp4", 20),
		newEntry("m1", "a.mp4", 10),
	}
	if err := s.BulkPut(ctx, entries); err != nil {
		t.Fatalf("BulkPut failed: %v", err)
	}

	ranged, err := s.QueryRange(ctx, "m1")
	if err != nil {
		t.Fatalf("QueryRange failed: %v", err)
	}
	wantRange := []string{"m1::a.mp4", "m1::b.mp4", "m1::c.mp4"}
	if len(ranged) != len(wantRange) {
		t.Fatalf("QueryRange returned %d entries, want %d", len(ranged), len(wantRange))
	}
	for i, id := range wantRange {
		if ranged[i].ID != id {
			t.Errorf("range[%d] = %s, want %s", i, ranged[i].ID, id)
		}
	}

	var all []string
	err = s.IterateAll(ctx, func(e Entry) error {
		all = append(all, e.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("IterateAll failed: %v", err)
	}
	wantAll := []string{"m1::a.mp4", "m1::b.mp4", "m2::z.mp4", "m1::c.mp4"}
	for i, id := range wantAll {
		if all[i] != id {
			t.Errorf("all[%d] = %s, want %s", i, all[i], id)
		}
	}
}

func TestMemoryStoreBulkPutIsAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	bad := newEntry("m", "dup.mp4", 1)
	bad.ID = "other-id"
	batch := []Entry{newEntry("m", "dup.mp4", 1), bad}

	if err := s.BulkPut(ctx, batch); !errors.Is(err, ErrConflict) {
		t.Fatalf("BulkPut error = %v, want ErrConflict", err)
	}
	st, _ := s.Stats(ctx)
	if st.TotalEntries != 0 {
		t.Errorf("TotalEntries = %d after failed batch, want 0", st.TotalEntries)
	}
}

func TestMemoryStoreUpsertPathsPreservesUserFields(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	e := newEntry("m", "a.mp4", 5)
	e.Tags = []string{"keep"}
	e.Favorite = true
	e.TitleOverride = "Custom"
	if err := s.Put(ctx, e); err != nil {
		t.Fatal(err)
	}

	refreshed := newEntry("m", "a.mp4", 999)
	refreshed.SourceRef = "/new/location/a.mp4"
	fresh := newEntry("m", "b.mp4", 999)

	res, err := s.UpsertPaths(ctx, []Entry{refreshed, fresh})
	if err != nil {
		t.Fatalf("UpsertPaths failed: %v", err)
	}
	if len(res.Added) != 1 || res.Added[0] != fresh.ID {
		t.Errorf("Added = %v", res.Added)
	}
	if len(res.Updated) != 1 || res.Updated[0] != e.ID {
		t.Errorf("Updated = %v", res.Updated)
	}

	got, _ := s.Get(ctx, e.ID)
	if !got.Favorite || got.TitleOverride != "Custom" || len(got.Tags) != 1 || got.AddedAt != 5 {
		t.Errorf("user fields changed: %+v", got)
	}
	if got.SourceRef != "/new/location/a.mp4" {
		t.Errorf("SourceRef = %q, want refreshed value", got.SourceRef)
	}
}

func TestMemoryStoreMountsDoNotCascade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()

	m := Mount{ID: "m", Name: "Movies", SourceKind: SourceHandle, Root: "/media", Extensions: []string{"mp4"}}
	if err := s.PutMount(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, newEntry("m", "a.mp4", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteMount(ctx, "m"); err != nil {
		t.Fatalf("DeleteMount failed: %v", err)
	}
	if _, err := s.Get(ctx, "m::a.mp4"); err != nil {
		t.Errorf("entry removed with mount: %v", err)
	}
	if _, err := s.GetMount(ctx, "m"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMount after delete error = %v", err)
	}
}

func TestNotifierSubscribe(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ch, cancel := s.Subscribe()
	defer cancel()

	before := s.Version()
	if err := s.Put(context.Background(), newEntry("m", "a.mp4", 1)); err != nil {
		t.Fatal(err)
	}

	select {
	case v := <-ch:
		if v <= before {
			t.Errorf("notified version %d not after %d", v, before)
		}
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
}

func TestNotifierCoalesces(t *testing.T) {
	t.Parallel()
	var n Notifier
	ch, cancel := n.Subscribe()

	for i := 0; i < 5; i++ {
		n.Bump()
	}
	if v := <-ch; v != 5 {
		t.Errorf("received version %d, want latest 5", v)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
}

func TestEdits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	e := newEntry("m", "clip.mp4", 1)
	if err := s.Put(ctx, e); err != nil {
		t.Fatal(err)
	}

	got, err := SetTags(ctx, s, e.ID, []string{"B", "#a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" || got.Tags[1] != "b" {
		t.Errorf("Tags = %v", got.Tags)
	}

	got, _ = AddTag(ctx, s, e.ID, "Road Trip")
	if !got.HasTag("road-trip") {
		t.Errorf("AddTag did not add normalized tag: %v", got.Tags)
	}
	got, _ = RemoveTag(ctx, s, e.ID, "A")
	if got.HasTag("a") {
		t.Errorf("RemoveTag left tag: %v", got.Tags)
	}

	got, _ = SetTitleOverride(ctx, s, e.ID, "  Best  ")
	if got.TitleOverride != "Best" || got.Title() != "Best" {
		t.Errorf("title = %q", got.TitleOverride)
	}
	got, _ = SetTitleOverride(ctx, s, e.ID, "   ")
	if got.TitleOverride != "" || got.Title() != "clip" {
		t.Errorf("blank title did not clear: %q", got.TitleOverride)
	}

	now := time.UnixMilli(42)
	got, _ = RecordPlay(ctx, s, e.ID, now)
	got, _ = RecordPlay(ctx, s, e.ID, now)
	if got.PlayCount != 2 || got.LastPlayedAt == nil || *got.LastPlayedAt != 42 {
		t.Errorf("play stats = %d, %v", got.PlayCount, got.LastPlayedAt)
	}

	neg := -1.0
	if _, err := SetDuration(ctx, s, e.ID, &neg); err == nil {
		t.Error("negative duration accepted")
	}

	if _, err := SetFavorite(ctx, s, "nope", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetFavorite(missing) error = %v", err)
	}
}

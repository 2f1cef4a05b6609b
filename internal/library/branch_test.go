package library_test

import (
	"errors"
	"testing"

	"tunes/internal/attributes"
	"tunes/internal/library"
	"tunes/internal/testsupport"
)

func TestBranchPersistsFetchedAttributes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue", album: "Kind", tempo: 120})
	snap := await(t, b, library.TrackTitle.Key)
	if title, _ := library.TrackTitle.Get(snap); title != "Blue" {
		t.Fatalf("title = %q, want Blue", title)
	}

	rec := b.Record()
	if title, _ := library.TrackTitle.Get(rec); title != "Blue" {
		t.Fatalf("record title = %q, want Blue", title)
	}
	if album, _ := library.TrackAlbum.Get(rec); album != "Kind" {
		t.Fatalf("record album = %q, want the rest of the request group", album)
	}
	if rec.State(library.TrackTempo.Key).IsValid() {
		t.Fatalf("tempo should not be fetched without demand")
	}
	if !b.RecordMask().Has(attributes.MaskMinimal) {
		t.Fatalf("record mask %s should include minimal", b.RecordMask())
	}
	if b.RecordMask().Has(attributes.MaskAttributes) {
		t.Fatalf("record mask %s should not include attributes before analysis", b.RecordMask())
	}
}

func TestReopenServesCacheWithoutBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, store := openLibrary(t, cfg, src)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue", album: "Kind", tempo: 120})
	await(t, b, library.TrackTitle.Key, library.TrackTempo.Key)
	id := b.ID()
	lib.Close()
	store.Close()

	src.setOffline(true)
	lib, _ = openLibrary(t, cfg, src)
	ctx := testContext(t)
	b, err := lib.Open(ctx, id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if b.Primary() != nil {
		t.Fatalf("expected no primary while the backend is offline")
	}
	if b.CacheMask() != attributes.MaskAll {
		t.Fatalf("cold branch cache mask = %s, want all", b.CacheMask())
	}
	snap := await(t, b, library.TrackTitle.Key, library.TrackTempo.Key)
	if title, _ := library.TrackTitle.Get(snap); title != "Blue" {
		t.Fatalf("title = %q, want Blue", title)
	}
	if tempo, _ := library.TrackTempo.Get(snap); tempo != 120 {
		t.Fatalf("tempo = %v, want 120", tempo)
	}
	if err := b.InvalidateCaches(ctx, attributes.MaskAll); err != nil {
		t.Fatalf("invalidate cold branch: %v", err)
	}
	if err := lib.Delete(ctx, id); !errors.Is(err, library.ErrNoBackend) {
		t.Fatalf("delete cold branch error = %v, want ErrNoBackend", err)
	}
}

func TestCachedKeysAreNotForwarded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, store := openLibrary(t, cfg, src)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue", album: "Kind", tempo: 120})
	await(t, b, library.TrackTitle.Key)
	id := b.ID()
	lib.Close()
	store.Close()

	lib, _ = openLibrary(t, cfg, src)
	b, err := lib.Open(testContext(t), id)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	snap := await(t, b, library.TrackTitle.Key)
	if title, _ := library.TrackTitle.Get(snap); title != "Blue" {
		t.Fatalf("title = %q, want Blue", title)
	}
	if got := src.fetchCount("t1", "read"); got != 1 {
		t.Fatalf("read fetches = %d, want 1 (cached title should not reach the backend)", got)
	}

	// Album arrived with the title, but its category is not marked current.
	await(t, b, library.TrackAlbum.Key)
	if got := src.fetchCount("t1", "read"); got != 2 {
		t.Fatalf("read fetches = %d, want 2", got)
	}
	if !b.RecordMask().Has(attributes.MaskMinimal) {
		t.Fatalf("record mask %s lost minimal", b.RecordMask())
	}
}

func TestInvalidateCachesRefetchesDemandedKeys(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue", album: "Kind"})
	await(t, b, library.TrackTitle.Key)

	sub := b.Attributes().Watch(library.TrackTitle.Key)
	defer sub.Close()

	src.mu.Lock()
	src.tracks["t1"] = fakeTrack{title: "Green", album: "Kind"}
	src.version = "v2"
	src.mu.Unlock()

	if err := b.InvalidateCaches(ctx, attributes.MaskMinimal); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := src.fetchCount("t1", "read"); got != 2 {
		t.Fatalf("read fetches = %d, want 2", got)
	}
	if title, _ := library.TrackTitle.Get(b.Record()); title != "Green" {
		t.Fatalf("record title = %q, want Green", title)
	}
	if !b.RecordMask().Has(attributes.MaskMinimal) {
		t.Fatalf("record mask %s should be restored after refetch", b.RecordMask())
	}
}

func TestInvalidateWithoutDemandOnlyClearsMask(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	await(t, b, library.TrackTitle.Key)

	if err := b.InvalidateCaches(ctx, attributes.MaskMinimal); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := src.fetchCount("t1", "read"); got != 1 {
		t.Fatalf("read fetches = %d, want 1", got)
	}
	if b.RecordMask().Has(attributes.MaskMinimal) {
		t.Fatalf("record mask %s should not include minimal", b.RecordMask())
	}
	if title, _ := library.TrackTitle.Get(b.Record()); title != "Blue" {
		t.Fatalf("stale record value should stay readable, got %q", title)
	}
}

func TestOlderBackendValueDoesNotReplaceRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.setVersion("v2")
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "New"})
	await(t, b, library.TrackTitle.Key)

	src.mu.Lock()
	src.tracks["t1"] = fakeTrack{title: "Old"}
	src.version = "v1"
	src.mu.Unlock()

	sub := b.Attributes().Watch(library.TrackTitle.Key)
	defer sub.Close()
	if err := b.InvalidateCaches(ctx, attributes.MaskMinimal); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := src.fetchCount("t1", "read"); got != 2 {
		t.Fatalf("read fetches = %d, want 2", got)
	}
	if title, _ := library.TrackTitle.Get(b.Record()); title != "New" {
		t.Fatalf("record title = %q, want New", title)
	}
	if title, _ := library.TrackTitle.Get(b.Attributes().Current()); title != "New" {
		t.Fatalf("view title = %q, want the newer cached value", title)
	}
}

func TestPersistedRefsCarryRecordIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.tracks["t1"] = fakeTrack{title: "One"}
	src.tracks["t2"] = fakeTrack{title: "Two"}
	src.playlists["p1"] = &fakePlaylist{title: "Mix", tracks: []string{"t1", "t2"}}
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b, err := lib.Resolve(ctx, library.TokenRef(playlistToken("p1")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	await(t, b, library.PlaylistTracks.Key)

	refs, ok := library.PlaylistTracks.Get(b.Record())
	if !ok || len(refs) != 2 {
		t.Fatalf("record tracks = %v, want two refs", refs)
	}
	for i, ref := range refs {
		if ref.ID == "" {
			t.Fatalf("ref %d has no record id", i)
		}
		track, err := lib.Resolve(ctx, ref)
		if err != nil {
			t.Fatalf("resolve track %d: %v", i, err)
		}
		if track.Token() != trackToken(src.playlists["p1"].tracks[i]) {
			t.Fatalf("track %d token = %v", i, track.Token())
		}
	}

	// Token-only refs from the live view resolve to the same records.
	live, _ := library.PlaylistTracks.Get(b.Attributes().Current())
	first, err := lib.Resolve(ctx, live[0])
	if err != nil {
		t.Fatalf("resolve live ref: %v", err)
	}
	if first.ID() != refs[0].ID {
		t.Fatalf("live ref resolved to %s, want %s", first.ID(), refs[0].ID)
	}
}

func TestReleasingViewDemandReleasesPrimary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue", tempo: 98})
	primary := b.Primary().Attributes()

	d := b.Attributes().Demand(library.TrackTempo.Key)
	if !primary.IsDemanded(library.TrackTempo.Key) {
		t.Fatalf("tempo demand was not forwarded to the backend")
	}
	other := b.Attributes().Demand(library.TrackTempo.Key)
	d.Release()
	if !primary.IsDemanded(library.TrackTempo.Key) {
		t.Fatalf("backend demand dropped while the view is still demanded")
	}
	other.Release()
	if primary.IsDemanded(library.TrackTempo.Key) {
		t.Fatalf("backend still demanded after the last view demand was released")
	}
	if err := b.Wait(testContext(t)); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestSameVersionChangeReplacesRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue", album: "Kind"})
	await(t, b, library.TrackTitle.Key)

	// The file changed within the resolution of its modification time.
	src.mu.Lock()
	src.tracks["t1"] = fakeTrack{title: "Green", album: "Kind"}
	src.mu.Unlock()

	sub := b.Attributes().Watch(library.TrackTitle.Key)
	defer sub.Close()
	if err := b.InvalidateCaches(ctx, attributes.MaskMinimal); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := b.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := src.fetchCount("t1", "read"); got != 2 {
		t.Fatalf("read fetches = %d, want 2", got)
	}
	if title, _ := library.TrackTitle.Get(b.Record()); title != "Green" {
		t.Fatalf("record title = %q, want Green", title)
	}
	if !b.RecordMask().Has(attributes.MaskMinimal) {
		t.Fatalf("record mask %s should include minimal", b.RecordMask())
	}
}

package library_test

import (
	"context"
	"errors"
	"testing"

	"tunes/internal/attributes"
	"tunes/internal/cachedb"
	"tunes/internal/library"
	"tunes/internal/testsupport"
)

func TestInsertReusesRecordForToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)

	first := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	second := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	if first.ID() != second.ID() {
		t.Fatalf("second insert created %s, want %s", second.ID(), first.ID())
	}
	records, err := lib.List(testContext(t), cachedb.KindTrack)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
}

func TestInsertTransientEntityIsIndexed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)

	b, err := lib.Insert(testContext(t), transientPlaylist(t, "Scratch"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !b.Indexed() {
		t.Fatalf("expected an indexed record")
	}
	if b.CacheMask() != attributes.MaskAll {
		t.Fatalf("cache mask = %s, want all", b.CacheMask())
	}
	if title, _ := library.PlaylistTitle.Get(b.Attributes().Current()); title != "Scratch" {
		t.Fatalf("title = %q, want Scratch", title)
	}
}

func TestOpenUnknownRecord(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lib, _ := openLibrary(t, cfg, newFakeSource())
	if _, err := lib.Open(testContext(t), "missing"); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("open error = %v, want ErrNotFound", err)
	}
}

func TestFolderImport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	track := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	folder, err := lib.NewFolder(ctx, "Mix", library.ContentHybrid)
	if err != nil {
		t.Fatalf("new folder: %v", err)
	}
	child, err := lib.NewFolder(ctx, "Nested", library.ContentTracks)
	if err != nil {
		t.Fatalf("new folder: %v", err)
	}

	refs := []library.Ref{
		library.RecordRef(track.ID()),
		library.RecordRef(track.ID()),
		library.RecordRef(child.ID()),
		library.RecordRef(child.ID()),
	}
	if err := lib.Import(ctx, folder.ID(), refs); err != nil {
		t.Fatalf("import: %v", err)
	}

	snap := folder.Record()
	tracks, _ := library.PlaylistTracks.Get(snap)
	if len(tracks) != 2 {
		t.Fatalf("tracks = %d, want duplicates kept", len(tracks))
	}
	if tracks[0].ID != track.ID() || tracks[0].Token == nil || *tracks[0].Token != trackToken("t1") {
		t.Fatalf("track ref = %+v", tracks[0])
	}
	children, _ := library.PlaylistChildren.Get(snap)
	if len(children) != 1 || children[0].ID != child.ID() {
		t.Fatalf("children = %+v, want one deduplicated child", children)
	}
	if got, _ := library.PlaylistChildren.Get(folder.Attributes().Current()); len(got) != 1 {
		t.Fatalf("view children = %+v", got)
	}

	roots, err := lib.Roots(ctx)
	if err != nil {
		t.Fatalf("roots: %v", err)
	}
	if len(roots) != 1 || roots[0].ID != folder.ID() {
		t.Fatalf("roots = %+v, want only the outer folder", roots)
	}
}

func TestImportErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	track := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	tracksOnly, err := lib.NewFolder(ctx, "Tracks", library.ContentTracks)
	if err != nil {
		t.Fatalf("new folder: %v", err)
	}
	hybrid, err := lib.NewFolder(ctx, "Hybrid", library.ContentHybrid)
	if err != nil {
		t.Fatalf("new folder: %v", err)
	}
	src.playlists["fixed"] = &fakePlaylist{title: "Fixed"}
	fixed, err := lib.Resolve(ctx, library.TokenRef(playlistToken("fixed")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	tests := []struct {
		name   string
		target string
		refs   []library.Ref
		want   error
	}{
		{"empty", hybrid.ID(), nil, library.ErrEmptyImport},
		{"track target", track.ID(), []library.Ref{library.RecordRef(hybrid.ID())}, library.ErrUnimportable},
		{"content type", tracksOnly.ID(), []library.Ref{library.RecordRef(hybrid.ID())}, library.ErrUnimportable},
		{"self", hybrid.ID(), []library.Ref{library.RecordRef(hybrid.ID())}, library.ErrUnimportable},
		{"backend without import", fixed.ID(), []library.Ref{library.RecordRef(track.ID())}, library.ErrUnimportable},
		{"unknown ref", hybrid.ID(), []library.Ref{library.RecordRef("missing")}, library.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := lib.Import(ctx, tc.target, tc.refs)
			if !errors.Is(err, tc.want) {
				t.Fatalf("import error = %v, want %v", err, tc.want)
			}
		})
	}

	if tracks, _ := library.PlaylistTracks.Get(hybrid.Record()); len(tracks) != 0 {
		t.Fatalf("failed imports changed the folder: %+v", tracks)
	}
}

func TestImportThroughBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.tracks["t1"] = fakeTrack{title: "One"}
	src.tracks["t2"] = fakeTrack{title: "Two"}
	src.playlists["p1"] = &fakePlaylist{title: "Mix", tracks: []string{"t1"}, importable: true}
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	playlist, err := lib.Resolve(ctx, library.TokenRef(playlistToken("p1")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	await(t, playlist, library.PlaylistTracks.Key)
	sub := playlist.Attributes().Watch(library.PlaylistTracks.Key)
	defer sub.Close()

	src.setVersion("v2")
	if err := lib.Import(ctx, playlist.ID(), []library.Ref{library.TokenRef(trackToken("t2"))}); err != nil {
		t.Fatalf("import: %v", err)
	}
	if err := playlist.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	src.mu.Lock()
	imported := append([]library.Token(nil), src.imported...)
	src.mu.Unlock()
	if len(imported) != 1 || imported[0] != trackToken("t2") {
		t.Fatalf("backend imported %v", imported)
	}
	if got := src.fetchCount("p1", "content"); got != 2 {
		t.Fatalf("content fetches = %d, want 2", got)
	}
	tracks, _ := library.PlaylistTracks.Get(playlist.Record())
	if len(tracks) != 2 || tracks[1].ID == "" {
		t.Fatalf("record tracks = %+v", tracks)
	}
}

func TestImportIntoColdBranch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.playlists["p1"] = &fakePlaylist{title: "Mix", importable: true}
	lib, store := openLibrary(t, cfg, src)
	ctx := testContext(t)

	playlist, err := lib.Resolve(ctx, library.TokenRef(playlistToken("p1")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	track := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	playlistID, trackID := playlist.ID(), track.ID()
	lib.Close()
	store.Close()

	src.setOffline(true)
	lib, _ = openLibrary(t, cfg, src)
	err = lib.Import(testContext(t), playlistID, []library.Ref{library.RecordRef(trackID)})
	if !errors.Is(err, library.ErrNoBackend) {
		t.Fatalf("import error = %v, want ErrNoBackend", err)
	}
}

func TestDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	if err := lib.Delete(ctx, b.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := src.deletedIDs(); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("backend deletes = %v", got)
	}
	if _, err := lib.Open(ctx, b.ID()); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("open after delete = %v, want ErrNotFound", err)
	}
}

func TestDeleteStopsOnPrimaryFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.deleteErrs["t1"] = errors.New("permission denied")
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	if err := lib.Delete(ctx, b.ID()); err == nil {
		t.Fatalf("expected delete to fail")
	}
	if _, err := lib.Open(ctx, b.ID()); err != nil {
		t.Fatalf("record should survive a failed delete: %v", err)
	}
}

func TestDeleteToleratesSecondaryFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.tracks["mirror"] = fakeTrack{title: "Blue"}
	src.deleteErrs["mirror"] = errors.New("read-only mirror")
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	if err := lib.AddSecondary(ctx, b.ID(), trackToken("mirror")); err != nil {
		t.Fatalf("add secondary: %v", err)
	}
	if len(b.Secondaries()) != 1 {
		t.Fatalf("secondaries = %d, want 1", len(b.Secondaries()))
	}
	if err := lib.Delete(ctx, b.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := src.deletedIDs(); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("backend deletes = %v", got)
	}
}

func TestRemoveSecondary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.tracks["mirror"] = fakeTrack{title: "Blue"}
	lib, store := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	if err := lib.AddSecondary(ctx, b.ID(), trackToken("mirror")); err != nil {
		t.Fatalf("add secondary: %v", err)
	}
	if err := lib.RemoveSecondary(ctx, b.ID(), trackToken("mirror")); err != nil {
		t.Fatalf("remove secondary: %v", err)
	}
	if len(b.Secondaries()) != 0 {
		t.Fatalf("secondaries = %d, want 0", len(b.Secondaries()))
	}
	rec, err := store.GetRecord(ctx, b.ID())
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if len(rec.Secondaries) != 0 {
		t.Fatalf("persisted secondaries = %v, want none", rec.Secondaries)
	}
	if err := lib.RemoveSecondary(ctx, b.ID(), trackToken("mirror")); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("second remove = %v, want ErrNotFound", err)
	}

	if err := lib.Delete(ctx, b.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := src.deletedIDs(); len(got) != 1 || got[0] != "t1" {
		t.Fatalf("backend deletes = %v, want only t1", got)
	}
}

func TestDeleteUndeletable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	src.playlists["p1"] = &fakePlaylist{title: "Editorial"}
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b, err := lib.Resolve(ctx, library.TokenRef(playlistToken("p1")))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := lib.Delete(ctx, b.ID()); !errors.Is(err, library.ErrUndeletable) {
		t.Fatalf("delete error = %v, want ErrUndeletable", err)
	}
}

func TestForgetKeepsBackendObject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	src := newFakeSource()
	lib, _ := openLibrary(t, cfg, src)
	ctx := testContext(t)

	b := insertTrack(t, lib, src, "t1", fakeTrack{title: "Blue"})
	if err := lib.Forget(ctx, b.ID()); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if got := src.deletedIDs(); len(got) != 0 {
		t.Fatalf("forget deleted backend objects: %v", got)
	}
	if err := lib.Forget(ctx, b.ID()); !errors.Is(err, library.ErrNotFound) {
		t.Fatalf("second forget = %v, want ErrNotFound", err)
	}
}

func TestRegistryRejectsUnknownKind(t *testing.T) {
	reg := library.NewRegistry()
	_, err := reg.Expand(context.Background(), library.Token{Kind: "nope", ID: "1"})
	if !errors.Is(err, library.ErrUnsupported) {
		t.Fatalf("expand error = %v, want ErrUnsupported", err)
	}
}

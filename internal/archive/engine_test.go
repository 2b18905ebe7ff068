package archive

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/psylog/internal/common"
	"github.com/dmitrijs2005/psylog/internal/cryptox"
	"github.com/dmitrijs2005/psylog/internal/logging"
	"github.com/dmitrijs2005/psylog/internal/snapshot"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/pbkdf2"
)

func sampleJSON(t *testing.T) []byte {
	t.Helper()
	s := &snapshot.Snapshot{
		Substances: []snapshot.Substance{{ID: "1", Name: "Psilocybin", Color: "#884", CreatedAt: "2025-01-01T00:00:00Z"}},
		Entries: []snapshot.Entry{{
			ID: "2", Substance: "Psilocybin", Dose: 1.5, Unit: "g", Date: "2025-01-02T20:00",
			Notes: `calm; "good"`, CreatedAt: "2025-01-02T20:00:00Z",
		}},
	}
	b, err := snapshot.EncodeJSON(s)
	require.NoError(t, err)
	return b
}

func seedMedia(t *testing.T, f *fixture, audios, photos int) {
	t.Helper()
	for i := 0; i < audios; i++ {
		writeFile(t, f.opts.AudioDir, fmt.Sprintf("note_%d.m4a", i), fmt.Sprintf("audio-%d", i))
	}
	for i := 0; i < photos; i++ {
		writeFile(t, f.opts.PhotoDir, fmt.Sprintf("photo_%d.jpg", i), fmt.Sprintf("photo-%d", i))
	}
}

func TestBuildRestore_PlainRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMedia(t, f, 3, 2)
	writeFile(t, f.opts.AudioDir, "draft.tmp", "not audio")
	data := sampleJSON(t)

	res, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(data), IncludeMedia: true})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "backup_2025-01-15_10-30-00.zip", res.Record.Filename)
	assert.Equal(t, KindManual, res.Record.Kind)
	assert.False(t, res.Record.Encrypted)
	assert.Positive(t, res.Record.SizeBytes)

	assert.Equal(t, []string{
		"audios/note_0.m4a", "audios/note_1.m4a", "audios/note_2.m4a",
		"data.csv", "data.json",
		"photos/photo_0.jpg", "photos/photo_1.jpg",
	}, zipNames(t, res.Record.Path))

	// live data changes after the backup
	require.NoError(t, os.RemoveAll(f.opts.AudioDir))
	writeFile(t, f.opts.AudioDir, "newer.m4a", "x")
	writeFile(t, f.opts.PhotoDir, "photo_0.jpg", "overwritten")

	rr, err := f.engine.Restore(ctx, res.Record.Path, nil)
	require.NoError(t, err)
	assert.True(t, rr.Success)
	assert.Equal(t, 3, rr.RestoredAudios)
	assert.Equal(t, 2, rr.RestoredPhotos)
	assert.Equal(t, "restore succeeded (3 audios, 2 photos)", rr.Message)

	want, err := snapshot.DecodeJSON(data)
	require.NoError(t, err)
	got, err := snapshot.DecodeJSON(rr.SnapshotText)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(snapshot.Substance{}, snapshot.Entry{})); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"note_0.m4a", "note_1.m4a", "note_2.m4a"}, dirNames(t, f.opts.AudioDir))
	assert.Equal(t, []string{"photo_0.jpg", "photo_1.jpg"}, dirNames(t, f.opts.PhotoDir))
	b, err := os.ReadFile(filepath.Join(f.opts.PhotoDir, "photo_0.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "photo-0", string(b))

	// no staging leftovers next to the live directories
	assert.Equal(t, []string{"audio_notes", "entry_photos"}, dirNames(t, filepath.Dir(f.opts.AudioDir)))
}

func TestBuild_CSVEntryMatchesSnapshot(t *testing.T) {
	f := newFixture(t)
	res, err := f.engine.Build(context.Background(), BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	require.NoError(t, err)

	zr, err := zip.OpenReader(res.Record.Path)
	require.NoError(t, err)
	defer zr.Close()

	csvText, err := readEntry(findEntry(&zr.Reader, EntryCSV), 1<<20)
	require.NoError(t, err)
	s, err := snapshot.DecodeCSV(csvText)
	require.NoError(t, err)
	require.Len(t, s.Entries, 1)
	assert.Equal(t, `calm; "good"`, s.Entries[0].Notes)
}

func TestBuildRestore_Encrypted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMedia(t, f, 2, 1)
	password := []byte("correct horse")

	res, err := f.engine.Build(ctx, BuildRequest{
		Snapshot: StaticSnapshot(sampleJSON(t)), IncludeMedia: true, Password: password, Kind: KindAuto,
	})
	require.NoError(t, err)
	assert.True(t, res.Record.Encrypted)
	assert.Equal(t, []string{"data.enc", "metadata.json"}, zipNames(t, res.Record.Path))

	require.NoError(t, os.RemoveAll(f.opts.AudioDir))
	writeFile(t, f.opts.AudioDir, "keep.m4a", "live")

	t.Run("no password", func(t *testing.T) {
		rr, err := f.engine.Restore(ctx, res.Record.Path, nil)
		require.ErrorIs(t, err, common.ErrPasswordRequired)
		assert.False(t, rr.Success)
		assert.True(t, rr.PasswordRequired)
		assert.True(t, rr.Encrypted)
		assert.Equal(t, "password needed", rr.Message)
		assert.Equal(t, []string{"keep.m4a"}, dirNames(t, f.opts.AudioDir))
	})

	t.Run("wrong password", func(t *testing.T) {
		rr, err := f.engine.Restore(ctx, res.Record.Path, []byte("wrong"))
		require.ErrorIs(t, err, common.ErrAuthFailed)
		assert.False(t, rr.Success)
		assert.False(t, rr.PasswordRequired)
		assert.Equal(t, "wrong password or corrupted backup", rr.Message)
		assert.Equal(t, []string{"keep.m4a"}, dirNames(t, f.opts.AudioDir))
	})

	t.Run("correct password", func(t *testing.T) {
		rr, err := f.engine.Restore(ctx, res.Record.Path, password)
		require.NoError(t, err)
		assert.True(t, rr.Success)
		assert.Equal(t, 2, rr.RestoredAudios)
		assert.Equal(t, 1, rr.RestoredPhotos)
		assert.Equal(t, []string{"note_0.m4a", "note_1.m4a"}, dirNames(t, f.opts.AudioDir))
	})
}

// The outer archive must stay readable by the standalone decryptor: hex
// salt and iv in metadata.json, PBKDF2-SHA256, GCM with the tag appended.
func TestEncryptedFormat_DecryptsWithPlainPrimitives(t *testing.T) {
	f := newFixture(t)
	password := "s3cret"
	res, err := f.engine.Build(context.Background(), BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t)), Password: []byte(password)})
	require.NoError(t, err)

	zr, err := zip.OpenReader(res.Record.Path)
	require.NoError(t, err)
	defer zr.Close()

	meta, err := readEntry(findEntry(&zr.Reader, EntryMetadata), 1<<16)
	require.NoError(t, err)
	m := gjson.ParseBytes(meta)
	assert.Equal(t, "AES-256-GCM", m.Get("algorithm").String())
	assert.Equal(t, int64(120000), m.Get("iterations").Int())
	assert.Equal(t, f.clock.Now().UnixMilli(), m.Get("timestamp").Int())
	salt, err := hex.DecodeString(m.Get("salt").String())
	require.NoError(t, err)
	iv, err := hex.DecodeString(m.Get("iv").String())
	require.NoError(t, err)
	require.Len(t, salt, 16)
	require.Len(t, iv, 12)

	sealed, err := readEntry(findEntry(&zr.Reader, EntryPayload), 1<<30)
	require.NoError(t, err)

	key := pbkdf2.Key([]byte(password), salt, int(m.Get("iterations").Int()), 32, sha256.New)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	plain, err := gcm.Open(nil, iv, sealed, nil)
	require.NoError(t, err)

	inner, err := zip.NewReader(bytes.NewReader(plain), int64(len(plain)))
	require.NoError(t, err)
	require.NotNil(t, findEntry(inner, EntrySnapshot))
}

func TestEncrypted_FreshSaltAndIV(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t)), Password: []byte("pw")}

	envs := map[string]bool{}
	for i := 0; i < 2; i++ {
		res, err := f.engine.Build(ctx, req)
		require.NoError(t, err)
		zr, err := zip.OpenReader(res.Record.Path)
		require.NoError(t, err)
		meta, err := readEntry(findEntry(&zr.Reader, EntryMetadata), 1<<16)
		require.NoError(t, err)
		_ = zr.Close()
		m := gjson.ParseBytes(meta)
		envs[m.Get("salt").String()] = true
		envs[m.Get("iv").String()] = true
	}
	assert.Len(t, envs, 4)
}

func TestRestore_PathTraversalStaysInside(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(f.root, "evil.zip")
	writeZip(t, path,
		zipEntry{"data.json", `{"substances":[],"entries":[]}`},
		zipEntry{"audios/../../etc/passwd", "pwned"},
		zipEntry{"audios/../../../outside.m4a", "pwned"},
		zipEntry{`photos/..\evil.jpg`, "pwned"},
		zipEntry{"photos/..", "pwned"},
		zipEntry{"audios/ok.m4a", "fine"},
		zipEntry{"audios/sub/nested.m4a", "fine"},
		zipEntry{"readme.txt", "ignored"},
	)

	rr, err := f.engine.Restore(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, rr.RestoredAudios)
	assert.Equal(t, 0, rr.RestoredPhotos)
	assert.Len(t, rr.Warnings, 4)

	assert.Equal(t, []string{"nested.m4a", "ok.m4a"}, dirNames(t, f.opts.AudioDir))
	assert.Empty(t, dirNames(t, f.opts.PhotoDir))
	assert.NoFileExists(t, filepath.Join(f.root, "etc", "passwd"))
	assert.NoFileExists(t, filepath.Join(f.root, "outside.m4a"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(f.root), "outside.m4a"))
	assert.NoFileExists(t, filepath.Join(f.root, "media", "evil.jpg"))
}

func TestRestore_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMedia(t, f, 1, 1)

	noData := filepath.Join(f.root, "nodata.zip")
	writeZip(t, noData, zipEntry{"audios/a.m4a", "x"})

	blankData := filepath.Join(f.root, "blank.zip")
	writeZip(t, blankData, zipEntry{"data.json", "  \n"}, zipEntry{"audios/a.m4a", "x"})

	notZip := filepath.Join(f.root, "notzip.zip")
	writeFile(t, f.root, "notzip.zip", "definitely not a zip")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing data.json", noData, common.ErrArchiveFormat},
		{"blank data.json", blankData, common.ErrArchiveFormat},
		{"not a zip", notZip, common.ErrArchiveFormat},
		{"missing file", filepath.Join(f.root, "nope.zip"), common.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, err := f.engine.Restore(ctx, tt.path, nil)
			require.ErrorIs(t, err, tt.want)
			assert.False(t, rr.Success)
			assert.NotEmpty(t, rr.Message)

			assert.Equal(t, []string{"note_0.m4a"}, dirNames(t, f.opts.AudioDir))
			assert.Equal(t, []string{"photo_0.jpg"}, dirNames(t, f.opts.PhotoDir))
			assert.Equal(t, []string{"audio_notes", "entry_photos"}, dirNames(t, filepath.Join(f.root, "media")))
		})
	}
}

func TestRestore_EntrySizeCap(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxEntrySize = 64 })
	path := filepath.Join(f.root, "big.zip")
	writeZip(t, path,
		zipEntry{"data.json", `{}`},
		zipEntry{"audios/big.m4a", string(bytes.Repeat([]byte("a"), 65))},
		zipEntry{"audios/small.m4a", "ok"},
	)

	rr, err := f.engine.Restore(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rr.RestoredAudios)
	assert.Len(t, rr.Warnings, 1)
	assert.Equal(t, []string{"small.m4a"}, dirNames(t, f.opts.AudioDir))
}

func TestEngine_BusyRejectsConcurrentStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.engine.sem.TryAcquire(1))

	_, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	assert.ErrorIs(t, err, common.ErrBusy)

	rr, err := f.engine.Restore(ctx, "whatever.zip", nil)
	assert.ErrorIs(t, err, common.ErrBusy)
	assert.Equal(t, "another backup or restore is running", rr.Message)

	_, err = f.engine.ExportPhotos(ctx)
	assert.ErrorIs(t, err, common.ErrBusy)

	f.engine.sem.Release(1)
	_, err = f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	assert.NoError(t, err)
}

func TestEngine_Async(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMedia(t, f, 1, 0)

	out := <-f.engine.BuildAsync(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t)), IncludeMedia: true})
	require.NoError(t, out.Err)

	rout := <-f.engine.RestoreAsync(ctx, out.Result.Record.Path, nil)
	require.NoError(t, rout.Err)
	assert.Equal(t, 1, rout.Result.RestoredAudios)
}

func TestBuild_SnapshotCacheAndPlaceholder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Build(ctx, BuildRequest{Kind: KindAuto})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "placeholder")
	rr, err := f.engine.Verify(ctx, res.Record.Path, nil)
	require.NoError(t, err)
	assert.Positive(t, rr.SnapshotBytes)

	_, ok, err := f.engine.CachedSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "placeholder is never cached")

	data := sampleJSON(t)
	f.clock.Advance(time.Second)
	_, err = f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(data)})
	require.NoError(t, err)

	cached, ok, err := f.engine.CachedSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, cached)

	// unattended build with a failing provider falls back to the cache
	f.clock.Advance(time.Second)
	res, err = f.engine.Build(ctx, BuildRequest{
		Snapshot: func(context.Context) ([]byte, error) { return nil, io.ErrUnexpectedEOF },
		Kind:     KindAuto,
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)

	restored, err := f.engine.Restore(ctx, res.Record.Path, nil)
	require.NoError(t, err)
	assert.Equal(t, data, restored.SnapshotText)
}

func TestBuild_RotationAndListing(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxBackups = 3 })
	ctx := context.Background()

	var names []string
	for i := 0; i < 5; i++ {
		kind := KindAuto
		if i%2 == 1 {
			kind = KindManual
		}
		res, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t)), Kind: kind})
		require.NoError(t, err)
		// mtime follows the injected clock so ordering is deterministic
		mod := f.clock.Now()
		require.NoError(t, os.Chtimes(res.Record.Path, mod, mod))
		names = append(names, res.Record.Filename)
		f.clock.Advance(time.Minute)
	}

	list, err := f.engine.ListBackups()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, names[4], list[0].Filename)
	assert.Equal(t, names[3], list[1].Filename)
	assert.Equal(t, names[2], list[2].Filename)
	assert.Equal(t, KindAuto, list[0].Kind)
	assert.Equal(t, KindManual, list[1].Kind)

	last, err := f.engine.LastBackup(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, names[4], last.Filename)
	assert.Equal(t, KindAuto, last.Kind)
}

func TestBuild_SameSecondGetsUniqueName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	require.NoError(t, err)
	b, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	require.NoError(t, err)
	assert.NotEqual(t, a.Record.Filename, b.Record.Filename)
	assert.Equal(t, "backup_2025-01-15_10-30-00_2.zip", b.Record.Filename)
}

func TestLastBackup_None(t *testing.T) {
	f := newFixture(t)
	last, err := f.engine.LastBackup(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestDeleteBackup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.DeleteBackup(ctx, "../backup_x.zip"), common.ErrValidation)
	assert.ErrorIs(t, f.engine.DeleteBackup(ctx, "notes.txt"), common.ErrValidation)
	assert.ErrorIs(t, f.engine.DeleteBackup(ctx, "backup_missing.zip"), common.ErrNotFound)

	require.NoError(t, f.engine.DeleteBackup(ctx, res.Record.Filename))
	list, err := f.engine.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMedia(t, f, 2, 3)
	res, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t)), IncludeMedia: true, Password: []byte("pw")})
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(f.opts.AudioDir))

	_, err = f.engine.Verify(ctx, res.Record.Path, nil)
	assert.ErrorIs(t, err, common.ErrPasswordRequired)

	v, err := f.engine.Verify(ctx, res.Record.Path, []byte("pw"))
	require.NoError(t, err)
	assert.True(t, v.Encrypted)
	assert.Equal(t, 2, v.Audios)
	assert.Equal(t, 3, v.Photos)
	assert.NoDirExists(t, f.opts.AudioDir, "verify never writes")
}

func TestExports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedMedia(t, f, 2, 1)

	plain, err := f.engine.ExportAudio(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "audios_2025-01-15_10-30-00.zip", filepath.Base(plain))
	assert.Equal(t, []string{"audios/note_0.m4a", "audios/note_1.m4a"}, zipNames(t, plain))

	enc, err := f.engine.ExportAudio(ctx, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, "audios_encrypted_2025-01-15_10-30-00.zip", filepath.Base(enc))
	assert.Equal(t, []string{"data.enc", "metadata.json"}, zipNames(t, enc))

	p, err := f.engine.openPayload(enc, []byte("pw"))
	require.NoError(t, err)
	defer p.Close()
	assert.Len(t, p.reader.File, 2)

	photos, err := f.engine.ExportPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"photos/photo_0.jpg"}, zipNames(t, photos))
	assert.Equal(t, f.opts.ExportDir, filepath.Dir(photos))
}

func TestWriteBundle_SkipsUnreadableMedia(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.m4a", "ok")

	var buf bytes.Buffer
	warnings, err := writeBundle(context.Background(), &buf, bundle{
		snapshot: []byte(`{}`),
		media: []mediaFile{
			{entry: "audios/gone.m4a", path: filepath.Join(dir, "gone.m4a")},
			{entry: "audios/good.m4a", path: filepath.Join(dir, "good.m4a")},
		},
	}, "", time.Now(), logging.Nop())
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "audios/gone.m4a")

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "audios/good.m4a", zr.File[1].Name)
}

func TestBuild_CancelledLeavesNoArchive(t *testing.T) {
	f := newFixture(t)
	seedMedia(t, f, 3, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Build(ctx, BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t)), IncludeMedia: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirNames(t, f.opts.BackupsDir))
}

func TestEnvelopeIterationsRespectMinimum(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Iterations = 10 })
	assert.Equal(t, cryptox.MinIterations, f.opts.Iterations)
}

func TestBuild_RotatesTenPlusOneDownToSeven(t *testing.T) {
	f := newFixture(t)
	base := f.clock.Now().Add(-30 * 24 * time.Hour)
	var existing []string
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("backup_2024-12-%02d_00-00-00.zip", i+1)
		writeFile(t, f.opts.BackupsDir, name, "old")
		mod := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(filepath.Join(f.opts.BackupsDir, name), mod, mod))
		existing = append(existing, name)
	}

	res, err := f.engine.Build(context.Background(), BuildRequest{Snapshot: StaticSnapshot(sampleJSON(t))})
	require.NoError(t, err)
	assert.ElementsMatch(t, existing[:4], res.Removed)

	want := append(append([]string{}, existing[4:]...), res.Record.Filename)
	assert.ElementsMatch(t, want, dirNames(t, f.opts.BackupsDir))
}

func TestRestore_UnsetMediaDirLeavesWorkingDirAlone(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, cwd, "precious.txt", "keep me")
	prevWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(cwd))
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	f := newFixture(t, func(o *Options) { o.PhotoDir = "" })
	ctx := context.Background()
	src := filepath.Join(f.root, "incoming.zip")
	writeZip(t, src,
		zipEntry{"data.json", string(sampleJSON(t))},
		zipEntry{"audios/a.m4a", "a"},
		zipEntry{"photos/p.jpg", "p"},
	)

	rr, err := f.engine.Restore(ctx, src, nil)
	require.NoError(t, err)
	assert.True(t, rr.Success)
	assert.Equal(t, 1, rr.RestoredAudios)
	assert.Zero(t, rr.RestoredPhotos)
	require.Len(t, rr.Warnings, 1)
	assert.Contains(t, rr.Warnings[0], "photos/p.jpg")

	b, err := os.ReadFile(filepath.Join(cwd, "precious.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(b))
	assert.Equal(t, []string{"precious.txt"}, dirNames(t, cwd))
}

func TestRestore_SameMediaDirsRejected(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PhotoDir = o.AudioDir })
	writeFile(t, f.opts.AudioDir, "a.m4a", "live")
	src := filepath.Join(f.root, "incoming.zip")
	writeZip(t, src, zipEntry{"data.json", string(sampleJSON(t))})

	_, err := f.engine.Restore(context.Background(), src, nil)
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, []string{"a.m4a"}, dirNames(t, f.opts.AudioDir))
}

package scanner

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"emperror.dev/errors"
	"github.com/corona10/goimagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photosweep/imageprocessor"
	"photosweep/matcher"
	"photosweep/scoring"
	"photosweep/types"
	"photosweep/utils"
)

var fixedTime = time.Date(2023, 8, 14, 9, 30, 0, 0, time.Local)

// fakeMeter decodes the file like the real meter would and reports a
// variance per file name; unknown names are sharp.
type fakeMeter struct {
	variances map[string]float64
	delay     time.Duration
	panicOn   string
	calls     atomic.Int32
	running   atomic.Int32
	peak      atomic.Int32
}

func (m *fakeMeter) Variance(path string) (float64, error) {
	m.calls.Add(1)
	n := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	name := filepath.Base(path)
	if name == m.panicOn {
		panic("meter exploded")
	}
	if _, err := imageprocessor.NewImageLoaderRegistry().LoadImage(path); err != nil {
		return 0, err
	}
	if v, ok := m.variances[name]; ok {
		return v, nil
	}
	return 5000, nil
}

func gradient(w, h int, seed uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*4) + seed*uint8(y%2)})
		}
	}
	return img
}

func writeImage(t *testing.T, path string, img image.Image) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	require.NoError(t, os.Chtimes(path, fixedTime, fixedTime))
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	data, err := os.ReadFile(src)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(dst, data, 0o644))
	require.NoError(t, os.Chtimes(dst, fixedTime, fixedTime))
}

func testExtractor(meter SharpnessMeter) *Extractor {
	return NewExtractor(imageprocessor.NewImageLoaderRegistry(), meter, scoring.DefaultBlur(), DefaultBlurThreshold)
}

func testOptions(dir string, meter SharpnessMeter) ScanOptions {
	return ScanOptions{
		FolderPath: dir,
		Recursive:  true,
		MaxWorkers: 4,
		Extractor:  testExtractor(meter),
		Matcher:    matcher.New(scoring.DefaultSimilarity(), matcher.DefaultThreshold, 2),
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"a.png", "B.JPG", "notes.txt", "sub/c.webp", "sub/deeper/d.tiff", "sub/e.heic"} {
		full := filepath.Join(dir, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.png"), 0o755))
	exts := imageprocessor.NewExtensionSet(imageprocessor.DefaultScanExtensions)

	flat, err := ListImageFiles(dir, false, exts)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "B.JPG"), filepath.Join(dir, "a.png")}, flat)

	all, err := ListImageFiles(dir, true, exts)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "B.JPG"),
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "sub", "c.webp"),
		filepath.Join(dir, "sub", "deeper", "d.tiff"),
	}, all)

	_, err = ListImageFiles(filepath.Join(dir, "missing"), true, exts)
	assert.Error(t, err)
	_, err = ListImageFiles(filepath.Join(dir, "missing"), false, exts)
	assert.Error(t, err)
}

func TestExtractSharpImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sharp.png")
	writeImage(t, path, gradient(32, 24, 0))

	out := testExtractor(&fakeMeter{}).Extract(path)
	require.Empty(t, out.Errors)
	assert.Nil(t, out.Blurry)
	require.NotNil(t, out.Record)

	r := out.Record
	assert.Equal(t, utils.ShortID(path), r.ID)
	assert.Equal(t, "sharp.png", r.Filename)
	assert.Equal(t, "32x24", r.Resolution)
	assert.Equal(t, 0, r.BlurScore)
	assert.Equal(t, "2023/08/14 09:30:00", r.ModifiedDate())
	// no embedded date, taken date falls back to the modification time
	assert.Equal(t, "2023/08/14 09:30:00", r.TakenDate)
	assert.Len(t, r.ContentDigest, 64)
	assert.NotNil(t, r.PerceptualHash)
}

type fixedTaken time.Time

func (f fixedTaken) TakenDate(string) (time.Time, error) { return time.Time(f), nil }

func TestExtractUsesEmbeddedTakenDate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	writeImage(t, path, gradient(8, 8, 0))

	e := testExtractor(&fakeMeter{})
	e.TakenDates = []imageprocessor.TakenDateReader{fixedTaken(time.Date(2019, 12, 31, 23, 59, 58, 0, time.Local))}

	out := e.Extract(path)
	require.NotNil(t, out.Record)
	assert.Equal(t, "2019/12/31 23:59:58", out.Record.TakenDate)
}

func TestExtractBlurryImageIsStillHashed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soft.png")
	writeImage(t, path, gradient(16, 16, 0))

	out := testExtractor(&fakeMeter{variances: map[string]float64{"soft.png": 100}}).Extract(path)
	require.NotNil(t, out.Blurry)
	assert.Equal(t, "blur_"+utils.ShortID(path), out.Blurry.ID)
	assert.Equal(t, 100, out.Blurry.BlurScore)
	assert.Equal(t, "16x16", out.Blurry.Resolution)
	require.NotNil(t, out.Record)
	assert.Equal(t, 100, out.Record.BlurScore)
}

func TestExtractBlurThresholdBoundary(t *testing.T) {
	dir := t.TempDir()
	at := filepath.Join(dir, "at.png")
	below := filepath.Join(dir, "below.png")
	writeImage(t, at, gradient(8, 8, 0))
	writeImage(t, below, gradient(8, 8, 1))

	// 1590 scores exactly 50, 1620 scores 49
	meter := &fakeMeter{variances: map[string]float64{"at.png": 1590, "below.png": 1620}}
	e := testExtractor(meter)

	assert.NotNil(t, e.Extract(at).Blurry)
	assert.Nil(t, e.Extract(below).Blurry)
}

func TestExtractUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image at all"), 0o644))

	out := testExtractor(&fakeMeter{}).Extract(path)
	assert.Nil(t, out.Record)
	assert.Nil(t, out.Blurry)
	require.Len(t, out.Errors, 1)
	e := out.Errors[0]
	assert.Equal(t, "err_blur_"+utils.ShortID(path), e.ID)
	assert.Equal(t, types.ErrorTypeProcessing, e.ErrorType)
	require.NotNil(t, e.SizeMB)
	assert.Equal(t, 0.0, *e.SizeMB)
}

func TestExtractMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.png")

	out := testExtractor(&fakeMeter{}).Extract(path)
	require.Len(t, out.Errors, 1)
	e := out.Errors[0]
	assert.Equal(t, "err_fnf_"+utils.ShortID(path), e.ID)
	assert.Equal(t, types.ErrorTypeFileNotFound, e.ErrorType)
	assert.Equal(t, "gone.png", e.Filename)
	assert.Nil(t, e.SizeMB)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"size"`)
}

func TestExtractHashFailures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	writeImage(t, path, gradient(8, 8, 0))
	id := utils.ShortID(path)

	failHash := func(image.Image) (*goimagehash.ImageHash, error) { return nil, errors.NewPlain("hash broke") }
	failDigest := func(string) (string, error) { return "", errors.NewPlain("digest broke") }

	tests := []struct {
		name    string
		hash    bool
		digest  bool
		wantIDs []string
	}{
		{"perceptual hash", true, false, []string{"err_ahash_" + id}},
		{"content digest", false, true, []string{"err_sha256_" + id}},
		{"both", true, true, []string{"err_ahash_" + id, "err_sha256_" + id}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testExtractor(&fakeMeter{variances: map[string]float64{"img.png": 0}})
			if tt.hash {
				e.Hash = failHash
			}
			if tt.digest {
				e.Digest = failDigest
			}
			out := e.Extract(path)
			assert.Nil(t, out.Record)
			assert.NotNil(t, out.Blurry)
			var ids []string
			for _, rec := range out.Errors {
				ids = append(ids, rec.ID)
				assert.Equal(t, types.ErrorTypeProcessing, rec.ErrorType)
				assert.NotNil(t, rec.SizeMB)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestExtractRecoversPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boom.png")
	writeImage(t, path, gradient(8, 8, 0))

	out := testExtractor(&fakeMeter{panicOn: "boom.png"}).Extract(path)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "err_proc_"+utils.ShortID(path), out.Errors[0].ID)
	assert.Contains(t, out.Errors[0].ErrorMessage, "meter exploded")
	assert.Nil(t, out.Record)
}

func TestScanEmptyDirectory(t *testing.T) {
	report := Scan(context.Background(), testOptions(t.TempDir(), &fakeMeter{}))

	data, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{"blurryImages":[],"similarImagePairs":[],"errorFiles":[]}`, string(data))
}

func TestScanMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nope")
	report := Scan(context.Background(), testOptions(root, &fakeMeter{}))

	assert.Empty(t, report.BlurryImages)
	assert.Empty(t, report.SimilarImagePairs)
	require.Len(t, report.ErrorFiles, 1)
	assert.Equal(t, "err_scan_root_0", report.ErrorFiles[0].ID)
	assert.Equal(t, types.ErrorTypeScan, report.ErrorFiles[0].ErrorType)
	assert.Equal(t, "nope", report.ErrorFiles[0].Filename)
}

func TestScanFindsDuplicatesAndErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.png")
	b := filepath.Join(dir, "b.png")
	near := filepath.Join(dir, "sub", "near.png")
	broken := filepath.Join(dir, "sub", "broken.gif")
	soft := filepath.Join(dir, "soft.png")

	base := gradient(64, 64, 0)
	writeImage(t, a, base)
	copyFile(t, a, b)

	tweaked := gradient(64, 64, 0)
	tweaked.SetGray(0, 0, color.Gray{Y: 1})
	writeImage(t, near, tweaked)

	writeImage(t, soft, image.NewGray(image.Rect(0, 0, 10, 10)))
	require.NoError(t, os.WriteFile(broken, []byte("GIF89a garbage"), 0o644))

	meter := &fakeMeter{variances: map[string]float64{"soft.png": 10}}
	report := Scan(context.Background(), testOptions(dir, meter))

	require.Len(t, report.ErrorFiles, 1)
	assert.Equal(t, "err_blur_"+utils.ShortID(broken), report.ErrorFiles[0].ID)

	require.Len(t, report.BlurryImages, 1)
	assert.Equal(t, soft, report.BlurryImages[0].Path)

	var exact, perceptual []types.SimilarPair
	for _, p := range report.SimilarImagePairs {
		switch p.MatchPhase {
		case types.MatchPhaseExact:
			exact = append(exact, p)
		case types.MatchPhasePerceptual:
			perceptual = append(perceptual, p)
		}
	}
	require.Len(t, exact, 1)
	assert.Equal(t, a, exact[0].Path1)
	assert.Equal(t, b, exact[0].Path2)
	assert.Equal(t, 100, exact[0].Similarity)
	assert.Equal(t, types.SideFile1, exact[0].Recommended)

	// a and b left the pool, so near only pairs perceptually with nothing of theirs
	for _, p := range perceptual {
		assert.NotEqual(t, a, p.Path1)
		assert.NotEqual(t, b, p.Path2)
		assert.NotEqual(t, a, p.Path2)
		assert.NotEqual(t, b, p.Path1)
	}
}

func TestScanNonRecursive(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "top.png"), gradient(8, 8, 0))
	writeImage(t, filepath.Join(dir, "sub", "soft.png"), gradient(8, 8, 0))

	meter := &fakeMeter{variances: map[string]float64{"top.png": 0, "soft.png": 0}}
	options := testOptions(dir, meter)
	options.Recursive = false

	report := Scan(context.Background(), options)
	require.Len(t, report.BlurryImages, 1)
	assert.Equal(t, "top.png", report.BlurryImages[0].Filename)
}

func TestScanIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 12; i++ {
		writeImage(t, filepath.Join(dir, string(rune('a'+i))+".png"), gradient(32, 32, uint8(i%3)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.jpg"), []byte("junk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.jpg"), []byte("junk"), 0o644))

	meter := &fakeMeter{variances: map[string]float64{"a.png": 0, "e.png": 0, "k.png": 0}}
	first := Scan(context.Background(), testOptions(dir, meter))
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, Scan(context.Background(), testOptions(dir, meter)))
	}
	assert.Len(t, first.BlurryImages, 3)
	assert.Len(t, first.ErrorFiles, 2)
	assert.NotEmpty(t, first.SimilarImagePairs)
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "a.png"), gradient(8, 8, 0))
	writeImage(t, filepath.Join(dir, "b.png"), gradient(8, 8, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	meter := &fakeMeter{}
	report := Scan(ctx, testOptions(dir, meter))
	assert.Equal(t, int32(0), meter.calls.Load())
	assert.NotNil(t, report.BlurryImages)
	assert.NotNil(t, report.SimilarImagePairs)
	assert.NotNil(t, report.ErrorFiles)
}

func TestScanFileTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.png")
	writeImage(t, path, gradient(8, 8, 0))

	options := testOptions(dir, &fakeMeter{delay: 300 * time.Millisecond})
	options.FileTimeout = 20 * time.Millisecond

	report := Scan(context.Background(), options)
	require.Len(t, report.ErrorFiles, 1)
	assert.Equal(t, "err_timeout_"+utils.ShortID(path), report.ErrorFiles[0].ID)
	assert.Equal(t, types.ErrorTypeProcessing, report.ErrorFiles[0].ErrorType)
}

func TestScanTimeoutKeepsWorkerLimit(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		writeImage(t, filepath.Join(dir, name), gradient(8, 8, 0))
	}

	meter := &fakeMeter{delay: 100 * time.Millisecond}
	options := testOptions(dir, meter)
	options.MaxWorkers = 1
	options.FileTimeout = 10 * time.Millisecond

	report := Scan(context.Background(), options)
	require.Len(t, report.ErrorFiles, 3)
	for _, e := range report.ErrorFiles {
		assert.Contains(t, e.ID, "err_timeout_")
	}
	assert.Eventually(t, func() bool { return meter.calls.Load() == 3 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), meter.peak.Load())
}

func TestProgressTracker(t *testing.T) {
	tracker := NewProgressTracker(FileStats{totalFiles: 3}, true)
	tracker.Record(Outcome{Blurry: &types.BlurryImage{}})
	tracker.Record(Outcome{Errors: []types.ErrorRecord{{ID: "x"}}})
	tracker.Record(Outcome{})
	tracker.Stop()
	tracker.Stop()

	processed, errs, blurry := tracker.Counts()
	assert.Equal(t, 3, processed)
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, blurry)
}

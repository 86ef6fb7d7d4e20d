package storage

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-billy.v4/memfs"
	"gopkg.in/src-d/go-billy.v4/osfs"

	"github.com/san-kum/seesaw/internal/config"
	"github.com/san-kum/seesaw/internal/experiment"
	"github.com/san-kum/seesaw/internal/sampling"
)

func testSamples() []sampling.Sample {
	return []sampling.Sample{
		{OffsetMs: 0, Raw: 400, Filtered: 400, Error: 112, P: 67.2, I: 0.336, D: 0},
		{OffsetMs: 50, Raw: 450, Filtered: 431.5, Error: 80.5, P: 48.3, I: 2.1, D: -12.25},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	st := NewWithFS(memfs.New())
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := st.Save(RunMetadata{
		Run:       1,
		Source:    "sim",
		Timestamp: ts,
		Tuning:    config.DefaultTuning(),
		Metrics:   map[string]float64{"rms_error": 4.2},
	}, testSamples())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "run_"), "unexpected id %q", id)

	meta, err := st.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "sim", meta.Source)
	assert.Equal(t, 2, meta.Samples)
	assert.Equal(t, config.DefaultTuning(), meta.Tuning)
	assert.True(t, meta.Timestamp.Equal(ts))

	samples, err := st.LoadSamples(id)
	require.NoError(t, err)
	assert.Equal(t, testSamples(), samples)
}

func TestStoreList(t *testing.T) {
	st := NewWithFS(memfs.New())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)

	_, err = st.Resolve("latest")
	assert.ErrorIs(t, err, ErrNoRuns)

	for i := 3; i >= 1; i-- {
		_, err := st.Save(RunMetadata{Run: i, Timestamp: base.Add(time.Duration(i) * time.Minute)}, nil)
		require.NoError(t, err)
	}

	runs, err = st.List()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for i, r := range runs {
		assert.Equal(t, i+1, r.Run)
	}

	latest, err := st.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, runs[2].ID, latest)

	explicit, err := st.Resolve("run_x")
	require.NoError(t, err)
	assert.Equal(t, "run_x", explicit)
}

func TestStoreList_MissingDir(t *testing.T) {
	st := New(t.TempDir() + "/nope")
	runs, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	st := NewWithFS(osfs.New(dir))

	id, err := st.Save(RunMetadata{Source: "hw"}, testSamples())
	require.NoError(t, err)

	samples, err := New(dir).LoadSamples(id)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestReadCSV_RejectsBadRow(t *testing.T) {
	in := "offset_ms,raw,filtered,error,p,i,d\n0,400,400,1,1,1,x\n"
	_, err := ReadCSV(strings.NewReader(in))
	assert.Error(t, err)
}

func TestExportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSON(&buf, RunMetadata{ID: "run_1"}, testSamples()))
	assert.Contains(t, buf.String(), `"id": "run_1"`)
	assert.Contains(t, buf.String(), `"offset_ms": 50`)
}

func TestRecorder(t *testing.T) {
	st := NewWithFS(memfs.New())
	rec := NewRecorder(st, config.DefaultRig(), "sim", nil)

	rec.OnRunComplete(7, experiment.Result{
		Tuning:    config.DefaultTuning(),
		Samples:   testSamples(),
		ElapsedMs: 10000,
	})
	require.NotEmpty(t, rec.LastID)

	meta, err := st.Load(rec.LastID)
	require.NoError(t, err)
	assert.Equal(t, 7, meta.Run)
	assert.Equal(t, config.DefaultRig(), meta.Rig)
	assert.Contains(t, meta.Metrics, "rms_error")
}

package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/houzhh15/speech-corpus/cmd/corpus/internal/store"
)

func ptr[T any](v T) *T { return &v }

func sampleCorpus() store.Corpus {
	return store.Corpus{
		"book_00000.wav": {Start: 0.0, End: 2.0, ASR: ptr("the quick brown fox"), Found: ptr("the quick brown fox"), Shift: ptr(0), Diff: ptr(0)},
		"book_00001.wav": {Start: 2.5, End: 4.5, ASR: ptr("jumps over"), Found: ptr("jumps over"), Diff: ptr(2)},
		"book_00002.wav": {Start: 5.0, End: 6.0, ASR: ptr("Таблица умножения")},
		"book_00003.wav": {Start: 6.5, End: 7.5},
		"book_00004.wav": {Start: 8.0, End: 10.0, ASR: ptr("The quick, brown fox!"), Found: ptr("the quick brown fox"), Shift: ptr(100), Diff: ptr(4)},
	}
}

func TestBuild(t *testing.T) {
	r := Build(sampleCorpus(), Options{Threshold: DefaultThreshold})

	assert.Equal(t, 5, r.Chunks)
	assert.Equal(t, 4, r.Transcribed)
	assert.Equal(t, 3, r.Aligned)
	assert.Equal(t, 1, r.Unresolved)
	assert.Equal(t, 1, r.NoShift)
	assert.InDelta(t, 8.0, r.TotalDuration, 1e-9)
	assert.InDelta(t, 1.6, r.MeanDuration, 1e-9)
	assert.InDelta(t, 6.0, r.AlignedDuration, 1e-9)
	assert.InDelta(t, 2.0, r.MeanDiff, 1e-9)
	assert.Equal(t, 4, r.MaxDiff)

	require.Len(t, r.Duplicates, 1)
	assert.Equal(t, []string{"book_00000.wav", "book_00004.wav"}, r.Duplicates[0].IDs)
	assert.Equal(t, "the quick brown fox", r.Duplicates[0].Text)
}

func TestBuildDuplicatesDisabled(t *testing.T) {
	r := Build(sampleCorpus(), Options{Threshold: -1})
	assert.Empty(t, r.Duplicates)
}

func TestBuildEmpty(t *testing.T) {
	r := Build(store.Corpus{}, Options{})
	assert.Zero(t, r.Chunks)
	assert.Zero(t, r.MeanDuration)
	assert.NotNil(t, r.Duplicates)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, Fingerprint("Hello, World"), Fingerprint("hello world"))
	assert.Zero(t, Distance(Fingerprint("a b c"), Fingerprint("A  B  C")))
	assert.Greater(t, Distance(
		Fingerprint("съешь же ещё этих мягких французских булок да выпей чаю"),
		Fingerprint("the five boxing wizards jump quickly over the lazy dog"),
	), DefaultThreshold)
	assert.Equal(t, 64, Distance(0, ^uint64(0)))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Build(sampleCorpus(), Options{Threshold: DefaultThreshold})))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 3, decoded.Aligned)
	assert.Contains(t, buf.String(), `"mean_diff": 2`)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, Build(sampleCorpus(), Options{Threshold: DefaultThreshold})))
	out := buf.String()
	assert.Contains(t, out, "aligned")
	assert.Contains(t, out, "8.0s")
	assert.Contains(t, out, "duplicate groups")
	assert.Contains(t, out, "  book_00004.wav\n")
}

package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litexa.dev/litexa/common"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	}
}

func keys(result *Result) []string {
	var out []string
	for _, c := range result.Candidates {
		out = append(out, c.Key)
	}
	return out
}

func TestDiscover_DefaultLanguageFallback(t *testing.T) {
	tmp := t.TempDir()
	r := filepath.Join(tmp, "r")
	r2 := filepath.Join(tmp, "r2")
	writeFiles(t, r, map[string]string{"a.png": "default a", "b.png": "default b"})
	writeFiles(t, r2, map[string]string{"a.png": "english a"})

	languages := map[string]Language{
		DefaultLanguage: {Assets: &Group{Root: r, Files: []string{"a.png", "b.png"}}},
		"en-US":         {Assets: &Group{Root: r2, Files: []string{"a.png"}}},
	}

	result, err := Discover(languages, Options{BaseLocation: "proj/dev"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"proj/dev/default/a.png",
		"proj/dev/default/b.png",
		"proj/dev/en-US/a.png",
		"proj/dev/en-US/b.png",
	}, keys(result))

	enA := result.ByKey["proj/dev/en-US/a.png"]
	require.NotNil(t, enA)
	assert.Equal(t, filepath.Join(r2, "a.png"), enA.SourcePath)
	assert.False(t, enA.Fallback)

	enB := result.ByKey["proj/dev/en-US/b.png"]
	require.NotNil(t, enB)
	assert.Equal(t, filepath.Join(r, "b.png"), enB.SourcePath)
	assert.True(t, enB.Fallback)
	assert.Equal(t, result.ByKey["proj/dev/default/b.png"].ContentHash, enB.ContentHash)

	for _, c := range result.Candidates {
		assert.True(t, c.NeedsUpload, c.Key)
		assert.True(t, c.IsFirstUpload, c.Key)
		assert.Empty(t, c.RemoteHash, c.Key)
	}
	assert.NotEqual(t, enA.ContentHash, result.ByKey["proj/dev/default/a.png"].ContentHash)
}

func TestDiscover_MissingLanguageListShortCircuits(t *testing.T) {
	tmp := t.TempDir()
	writeFiles(t, filepath.Join(tmp, "default"), map[string]string{"a.png": "a", "b.png": "b"})
	writeFiles(t, filepath.Join(tmp, "en"), map[string]string{"a.png": "en a"})

	languages := map[string]Language{
		DefaultLanguage: {Assets: &Group{Root: filepath.Join(tmp, "default"), Files: []string{"a.png", "b.png"}}},
		"en-US":         {Assets: &Group{Root: filepath.Join(tmp, "en"), Files: []string{"a.png"}}},
		"fr-FR":         {},
	}

	t.Run("PreservedByDefault", func(t *testing.T) {
		result, err := Discover(languages, Options{BaseLocation: "p/v"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p/v/default/a.png", "p/v/default/b.png", "p/v/en-US/a.png"}, keys(result))
	})

	t.Run("FillMissingLanguages", func(t *testing.T) {
		result, err := Discover(languages, Options{BaseLocation: "p/v", FillMissingLanguages: true})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{
			"p/v/default/a.png", "p/v/default/b.png",
			"p/v/en-US/a.png", "p/v/en-US/b.png",
			"p/v/fr-FR/a.png", "p/v/fr-FR/b.png",
		}, keys(result))
	})
}

func TestDiscover_ConvertedCategory(t *testing.T) {
	tmp := t.TempDir()
	writeFiles(t, filepath.Join(tmp, "assets"), map[string]string{"song.wav": "raw"})
	writeFiles(t, filepath.Join(tmp, "converted"), map[string]string{"song.wav": "converted", "song.mp3": "mp3"})

	languages := map[string]Language{
		DefaultLanguage: {
			Assets:    &Group{Root: filepath.Join(tmp, "assets"), Files: []string{"song.wav"}},
			Converted: &Group{Root: filepath.Join(tmp, "converted"), Files: []string{"song.mp3", "song.wav"}},
		},
	}

	result, err := Discover(languages, Options{BaseLocation: "p/v"})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)

	wav := result.ByKey["p/v/default/song.wav"]
	require.NotNil(t, wav)
	assert.Equal(t, CategoryConverted, wav.Category)
	assert.Equal(t, filepath.Join(tmp, "converted", "song.wav"), wav.SourcePath)
}

func TestDiscover_Icons(t *testing.T) {
	tmp := t.TempDir()
	writeFiles(t, tmp, map[string]string{"icon-108.png": "small", "icon-512.png": "large", "other.png": "x"})

	languages := map[string]Language{
		DefaultLanguage: {Assets: &Group{Root: tmp, Files: []string{"icon-108.png", "icon-512.png", "other.png"}}},
		"de-DE":         {Assets: &Group{Root: tmp, Files: []string{}}},
	}

	result, err := Discover(languages, Options{
		BaseLocation: "p/v",
		BaseURL:      "https://s3.amazonaws.com/us-east-1/bucket/p/v/",
	})
	require.NoError(t, err)

	require.Contains(t, result.Icons, DefaultLanguage)
	require.Contains(t, result.Icons, "de-DE")
	small := result.Icons["de-DE"]["icon-108.png"]
	assert.Equal(t, "https://s3.amazonaws.com/us-east-1/bucket/p/v/de-DE/icon-108.png", small.URL)
	assert.Equal(t, result.ByKey["p/v/default/icon-108.png"].ContentHash, small.Hash)
	assert.Len(t, result.Icons[DefaultLanguage], 2)
}

func TestDiscover_InvalidKey(t *testing.T) {
	tmp := t.TempDir()
	writeFiles(t, tmp, map[string]string{"bad name.png": "x"})

	_, err := Discover(map[string]Language{
		DefaultLanguage: {Assets: &Group{Root: tmp, Files: []string{"bad name.png"}}},
	}, Options{BaseLocation: "p/v"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrPathValidation))
}

func TestDiscover_RejectsParentSegments(t *testing.T) {
	tmp := t.TempDir()
	writeFiles(t, filepath.Join(tmp, "assets"), map[string]string{"secret.png": "x"})
	root := filepath.Join(tmp, "assets", "sub")
	require.NoError(t, os.MkdirAll(root, 0755))

	result, err := Discover(map[string]Language{
		DefaultLanguage: {Assets: &Group{Root: root, Files: []string{"../secret.png"}}},
	}, Options{BaseLocation: "p/v"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrPathValidation))
	assert.Nil(t, result)
}

func TestDiscover_MissingFile(t *testing.T) {
	_, err := Discover(map[string]Language{
		DefaultLanguage: {Assets: &Group{Root: t.TempDir(), Files: []string{"ghost.png"}}},
	}, Options{BaseLocation: "p/v"})
	assert.Error(t, err)
}

func TestResult_PendingUploads(t *testing.T) {
	a := &Candidate{Key: "a", NeedsUpload: true}
	b := &Candidate{Key: "b", NeedsUpload: false}
	c := &Candidate{Key: "c", NeedsUpload: true}
	result := &Result{Candidates: []*Candidate{a, b, c}}
	assert.Equal(t, []*Candidate{a, c}, result.PendingUploads())
}

func TestCandidate_ShortHash(t *testing.T) {
	assert.Equal(t, "65a8e27", (&Candidate{ContentHash: "65a8e27d8879283831b664bd8b7f0ad4"}).ShortHash())
	assert.Equal(t, "abc", (&Candidate{ContentHash: "abc"}).ShortHash())
}

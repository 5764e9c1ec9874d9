package assets

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanProject(t *testing.T) {
	tmp := t.TempDir()
	layout := ProjectLayout{
		AssetsDir:    filepath.Join(tmp, "litexa", "assets"),
		LanguagesDir: filepath.Join(tmp, "litexa", "languages"),
		ConvertedDir: filepath.Join(tmp, ".deploy", "converted-assets"),
	}

	writeFiles(t, layout.AssetsDir, map[string]string{
		"icon-108.png":     "i",
		"sounds/intro.mp3": "s",
		".DS_Store":        "junk",
	})
	writeFiles(t, filepath.Join(layout.LanguagesDir, "fr-FR", "assets"), map[string]string{
		"sounds/intro.mp3": "fr",
	})
	writeFiles(t, filepath.Join(layout.LanguagesDir, "de-DE"), map[string]string{
		"skill.litexa": "no assets here",
	})
	writeFiles(t, filepath.Join(layout.ConvertedDir, "default"), map[string]string{
		"voice.mp3": "v",
	})

	languages, err := ScanProject(layout)
	require.NoError(t, err)

	require.Contains(t, languages, DefaultLanguage)
	assert.Equal(t, []string{"icon-108.png", "sounds/intro.mp3"}, languages[DefaultLanguage].Assets.Files)
	assert.Equal(t, []string{"voice.mp3"}, languages[DefaultLanguage].Converted.Files)

	require.Contains(t, languages, "fr-FR")
	assert.Equal(t, []string{"sounds/intro.mp3"}, languages["fr-FR"].Assets.Files)
	assert.Nil(t, languages["fr-FR"].Converted)

	require.Contains(t, languages, "de-DE")
	assert.Nil(t, languages["de-DE"].Assets)
}

func TestScanProject_MissingDirectories(t *testing.T) {
	tmp := t.TempDir()
	languages, err := ScanProject(ProjectLayout{
		AssetsDir:    filepath.Join(tmp, "nope"),
		LanguagesDir: filepath.Join(tmp, "nope-languages"),
		ConvertedDir: filepath.Join(tmp, "nope-converted"),
	})
	require.NoError(t, err)
	assert.Empty(t, languages)
}

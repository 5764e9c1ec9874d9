package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ProjectLayout names the directories a litexa project keeps assets in.
//
//	<AssetsDir>/...                       default language assets
//	<LanguagesDir>/<lang>/assets/...      per-language assets
//	<ConvertedDir>/<lang>/...             converted assets ("default" for the default language)
type ProjectLayout struct {
	AssetsDir    string
	LanguagesDir string
	ConvertedDir string
}

// ScanProject builds the per-language asset mapping Discover consumes. A
// language directory without an assets folder yields a Language with a nil
// Assets group. Missing top-level directories are not an error.
func ScanProject(layout ProjectLayout) (map[string]Language, error) {
	languages := make(map[string]Language)

	if layout.AssetsDir != "" {
		group, err := scanGroup(layout.AssetsDir)
		if err != nil {
			return nil, err
		}
		if group != nil {
			languages[DefaultLanguage] = Language{Assets: group}
		}
	}

	if layout.LanguagesDir != "" {
		names, err := subdirectories(layout.LanguagesDir)
		if err != nil {
			return nil, err
		}
		for _, lang := range names {
			group, err := scanGroup(filepath.Join(layout.LanguagesDir, lang, "assets"))
			if err != nil {
				return nil, err
			}
			l := languages[lang]
			l.Assets = group
			languages[lang] = l
		}
	}

	if layout.ConvertedDir != "" {
		names, err := subdirectories(layout.ConvertedDir)
		if err != nil {
			return nil, err
		}
		for _, lang := range names {
			group, err := scanGroup(filepath.Join(layout.ConvertedDir, lang))
			if err != nil {
				return nil, err
			}
			l := languages[lang]
			l.Converted = group
			languages[lang] = l
		}
	}

	return languages, nil
}

// scanGroup lists regular files below root, skipping hidden entries. It
// returns nil when root does not exist.
func scanGroup(root string) (*Group, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	group := &Group{Root: root, Files: []string{}}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		group.Files = append(group.Files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	sort.Strings(group.Files)
	return group, nil
}

func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

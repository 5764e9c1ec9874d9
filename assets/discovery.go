// Package assets discovers the static files of a litexa project that have to
// be published to the public asset bucket.
//
// Discovery walks every language's original and converted asset groups and
// produces one upload Candidate per destination key. Files present in the
// default language but missing from another language are duplicated into
// that language's namespace so every language resolves the full asset set.
package assets

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"litexa.dev/litexa/common"
	"litexa.dev/litexa/storage"
)

// DefaultLanguage names the fallback language whose assets fill gaps in
// every other language.
const DefaultLanguage = "default"

// Category distinguishes authored assets from assets produced by conversion.
type Category string

const (
	CategoryAssets    Category = "assets"
	CategoryConverted Category = "convertedAssets"
)

// Categories lists every category in processing order.
var Categories = []Category{CategoryAssets, CategoryConverted}

// IconFiles are the skill icons whose URL and hash feed the skill manifest.
var IconFiles = []string{"icon-108.png", "icon-512.png"}

// Group is a directory and the files below it, relative and slash-separated.
type Group struct {
	Root  string
	Files []string
}

// Language holds both asset categories for one language. A nil group means
// the language has no asset list for that category.
type Language struct {
	Assets    *Group
	Converted *Group
}

// Group returns the group for category c.
func (l Language) Group(c Category) *Group {
	switch c {
	case CategoryAssets:
		return l.Assets
	case CategoryConverted:
		return l.Converted
	}
	return nil
}

// Candidate is a local file considered for upload to Key.
type Candidate struct {
	Key        string
	Language   string
	Category   Category
	Name       string
	SourcePath string
	Size       int64

	ContentHash string
	// RemoteHash is empty until remote listing finds an object at Key.
	RemoteHash    string
	NeedsUpload   bool
	IsFirstUpload bool
	// Fallback is set when the file was copied from the default language.
	Fallback bool
}

// ShortHash is the abbreviated hash used in log lines.
func (c *Candidate) ShortHash() string {
	if len(c.ContentHash) > 7 {
		return c.ContentHash[:7]
	}
	return c.ContentHash
}

// Icon describes a published skill icon.
type Icon struct {
	URL  string `json:"url" yaml:"url"`
	Hash string `json:"hash" yaml:"hash"`
}

// Options controls discovery.
type Options struct {
	// BaseLocation prefixes every key, typically "<project>/<variant>".
	BaseLocation string
	// BaseURL is the public URL BaseLocation resolves to, with a trailing slash.
	BaseURL string
	// FillMissingLanguages makes languages without an asset list for a
	// category receive the default language's files. When false, any such
	// language disables default duplication for the whole category.
	FillMissingLanguages bool
	Logger               common.DeployLogger
}

// Result is the output of Discover.
type Result struct {
	// Candidates are ordered by language (default first), category, then file list order.
	Candidates []*Candidate
	ByKey      map[string]*Candidate
	// Icons maps language to icon file name to icon metadata.
	Icons map[string]map[string]Icon
}

type discoverer struct {
	opts   Options
	result *Result
	hashes map[string]fileInfo
}

type fileInfo struct {
	hash string
	size int64
}

// Discover resolves every upload candidate for languages.
func Discover(languages map[string]Language, opts Options) (*Result, error) {
	if opts.Logger == nil {
		opts.Logger = common.DiscardLogger{}
	}
	d := &discoverer{
		opts: opts,
		result: &Result{
			ByKey: make(map[string]*Candidate),
			Icons: make(map[string]map[string]Icon),
		},
		hashes: make(map[string]fileInfo),
	}

	order := languageOrder(languages)
	for _, lang := range order {
		for _, category := range Categories {
			group := languages[lang].Group(category)
			if group == nil {
				continue
			}
			for _, name := range group.Files {
				if err := d.register(lang, category, name, group.Root, false); err != nil {
					return nil, err
				}
			}
		}
	}

	defaults, hasDefault := languages[DefaultLanguage]
	if !hasDefault {
		return d.result, nil
	}
	for _, category := range Categories {
		if err := d.duplicateDefaults(languages, order, defaults, category); err != nil {
			return nil, err
		}
	}

	return d.result, nil
}

func (d *discoverer) duplicateDefaults(languages map[string]Language, order []string, defaults Language, category Category) error {
	defaultGroup := defaults.Group(category)
	if defaultGroup == nil || len(defaultGroup.Files) == 0 {
		return nil
	}

	if !d.opts.FillMissingLanguages {
		for _, lang := range order {
			if lang != DefaultLanguage && languages[lang].Group(category) == nil {
				d.opts.Logger.Verbose(fmt.Sprintf("language %s has no %s list, skipping default %s duplication", lang, category, category))
				return nil
			}
		}
	}

	for _, lang := range order {
		if lang == DefaultLanguage {
			continue
		}
		own := make(map[string]bool)
		if group := languages[lang].Group(category); group != nil {
			for _, name := range group.Files {
				own[name] = true
			}
		}
		for _, name := range defaultGroup.Files {
			if own[name] {
				continue
			}
			if err := d.register(lang, category, name, defaultGroup.Root, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *discoverer) register(lang string, category Category, name, root string, fallback bool) error {
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return common.NewPathValidationError(name, "must not contain '..' segments")
		}
	}
	key := path.Join(d.opts.BaseLocation, lang, name)
	if err := storage.ValidatePathName(key); err != nil {
		return err
	}

	if existing, ok := d.result.ByKey[key]; ok {
		if fallback || existing.Category == category {
			return nil
		}
		d.opts.Logger.Verbose(fmt.Sprintf("%s %s replaces %s %s", category, name, existing.Category, name))
	}

	source := filepath.Join(root, filepath.FromSlash(name))
	info, err := d.hash(source)
	if err != nil {
		return err
	}

	candidate := &Candidate{
		Key:           key,
		Language:      lang,
		Category:      category,
		Name:          name,
		SourcePath:    source,
		Size:          info.size,
		ContentHash:   info.hash,
		NeedsUpload:   true,
		IsFirstUpload: true,
		Fallback:      fallback,
	}

	if existing, ok := d.result.ByKey[key]; ok {
		for i, c := range d.result.Candidates {
			if c == existing {
				d.result.Candidates[i] = candidate
				break
			}
		}
	} else {
		d.result.Candidates = append(d.result.Candidates, candidate)
	}
	d.result.ByKey[key] = candidate

	for _, icon := range IconFiles {
		if name == icon {
			if d.result.Icons[lang] == nil {
				d.result.Icons[lang] = make(map[string]Icon)
			}
			d.result.Icons[lang][name] = Icon{
				URL:  d.opts.BaseURL + lang + "/" + name,
				Hash: info.hash,
			}
		}
	}
	return nil
}

func (d *discoverer) hash(source string) (fileInfo, error) {
	if info, ok := d.hashes[source]; ok {
		return info, nil
	}
	stat, err := os.Stat(source)
	if err != nil {
		return fileInfo{}, fmt.Errorf("failed to stat asset %s: %w", source, err)
	}
	sum, err := storage.CalculateMD5(source)
	if err != nil {
		return fileInfo{}, err
	}
	info := fileInfo{hash: sum, size: stat.Size()}
	d.hashes[source] = info
	return info, nil
}

// PendingUploads returns the candidates still marked NeedsUpload, in order.
func (r *Result) PendingUploads() []*Candidate {
	var pending []*Candidate
	for _, c := range r.Candidates {
		if c.NeedsUpload {
			pending = append(pending, c)
		}
	}
	return pending
}

func languageOrder(languages map[string]Language) []string {
	order := make([]string, 0, len(languages))
	for lang := range languages {
		if lang != DefaultLanguage {
			order = append(order, lang)
		}
	}
	sort.Strings(order)
	if _, ok := languages[DefaultLanguage]; ok {
		order = append([]string{DefaultLanguage}, order...)
	}
	return order
}

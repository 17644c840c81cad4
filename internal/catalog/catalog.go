// Package catalog holds the localized user-facing messages the pipeline
// sends back over ingestion channels. Catalog files are embedded; lookups
// never fail — unknown locales fall back to the base locale and unknown keys
// render as the key itself so a missing translation is visible, not fatal.
package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the canonical source locale for catalogs.
const BaseLocale = "en"

//go:embed locales/*.yaml
var embeddedFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Bundle contains all locale catalogs and a matcher over their tags.
type Bundle struct {
	messages map[string]map[string]string
	tags     []language.Tag
	matcher  language.Matcher
}

// MustLoad loads the embedded catalogs or panics; called once at startup.
func MustLoad() *Bundle {
	bundle, err := LoadFromFS(embeddedFS)
	if err != nil {
		panic(fmt.Sprintf("catalog: %v", err))
	}
	return bundle
}

// LoadFromFS loads catalog files from the provided filesystem.
func LoadFromFS(catalogFS fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(catalogFS, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	bundle := &Bundle{messages: map[string]map[string]string{}}
	for _, path := range paths {
		data, err := fs.ReadFile(catalogFS, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		locale := strings.TrimSpace(file.Locale)
		if locale == "" {
			return nil, fmt.Errorf("catalog %s: locale is required", path)
		}
		if fromPath := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)); locale != fromPath {
			return nil, fmt.Errorf("catalog %s: locale %q must match filename locale %q", path, locale, fromPath)
		}
		if len(file.Messages) == 0 {
			return nil, fmt.Errorf("catalog %s: messages map is required", path)
		}
		if _, exists := bundle.messages[locale]; exists {
			return nil, fmt.Errorf("catalog %s: locale %q already defined", path, locale)
		}
		bundle.messages[locale] = file.Messages
	}

	base, ok := bundle.messages[BaseLocale]
	if !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	for locale, messages := range bundle.messages {
		if locale == BaseLocale {
			continue
		}
		for key := range messages {
			if _, exists := base[key]; !exists {
				return nil, fmt.Errorf("locale %s: key %q missing from base locale", locale, key)
			}
		}
	}

	// The base locale must come first so it wins the matcher's fallback.
	locales := []string{BaseLocale}
	for locale := range bundle.messages {
		if locale != BaseLocale {
			locales = append(locales, locale)
		}
	}
	sort.Strings(locales[1:])
	for _, locale := range locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		bundle.tags = append(bundle.tags, tag)
	}
	bundle.matcher = language.NewMatcher(bundle.tags)

	return bundle, nil
}

// Locales returns all available locale identifiers, base locale first.
func (b *Bundle) Locales() []string {
	out := make([]string, 0, len(b.tags))
	for _, tag := range b.tags {
		out = append(out, tag.String())
	}
	return out
}

// Get renders the message under key for the closest supported locale,
// applying args with Sprintf verbs from the catalog entry.
func (b *Bundle) Get(locale, key string, args ...any) string {
	_, index, _ := b.matcher.Match(language.Make(locale))
	messages := b.messages[b.tags[index].String()]
	format, ok := messages[key]
	if !ok {
		format, ok = b.messages[BaseLocale][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

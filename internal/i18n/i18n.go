// Package i18n holds the panel string tables and the message localization
// bridge for service-issued message ids.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

const (
	LocaleChinese = "zh-CN"
	LocaleEnglish = "en"

	// DefaultLocale is used when nothing better matches.
	DefaultLocale = LocaleChinese
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Catalog is a set of string tables with one active locale.
type Catalog struct {
	tables  map[string]map[string]string
	tags    []language.Tag
	codes   []string
	matcher language.Matcher

	mu     sync.RWMutex
	active string
}

// Load reads the embedded tables.
func Load() (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	tables := make(map[string]map[string]string, len(entries))
	for _, entry := range entries {
		code := strings.TrimSuffix(entry.Name(), path.Ext(entry.Name()))
		data, err := localeFS.ReadFile(path.Join("locales", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", code, err)
		}
		table := map[string]string{}
		if err := yaml.Unmarshal(data, &table); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", code, err)
		}
		tables[code] = table
	}
	return newCatalog(tables)
}

// MustLoad is Load for package initialization paths where the embedded
// tables are known to be valid.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func newCatalog(tables map[string]map[string]string) (*Catalog, error) {
	if _, ok := tables[DefaultLocale]; !ok {
		return nil, fmt.Errorf("default locale %s missing", DefaultLocale)
	}

	codes := make([]string, 0, len(tables))
	for code := range tables {
		codes = append(codes, code)
	}
	// Default first: the matcher falls back to the first tag.
	sort.Slice(codes, func(i, j int) bool {
		if codes[i] == DefaultLocale || codes[j] == DefaultLocale {
			return codes[i] == DefaultLocale
		}
		return codes[i] < codes[j]
	})

	tags := make([]language.Tag, 0, len(codes))
	for _, code := range codes {
		tag, err := language.Parse(code)
		if err != nil {
			return nil, fmt.Errorf("locale %q: %w", code, err)
		}
		tags = append(tags, tag)
	}

	return &Catalog{
		tables:  tables,
		tags:    tags,
		codes:   codes,
		matcher: language.NewMatcher(tags),
		active:  DefaultLocale,
	}, nil
}

// Locales lists the supported locale codes, default first.
func (c *Catalog) Locales() []string {
	return append([]string(nil), c.codes...)
}

// Match maps a preference such as "en_US.UTF-8", "zh-TW", or "en" to the
// closest supported locale.
func (c *Catalog) Match(pref string) string {
	pref = strings.TrimSpace(pref)
	if i := strings.IndexAny(pref, ".@"); i >= 0 {
		pref = pref[:i]
	}
	pref = strings.ReplaceAll(pref, "_", "-")
	if pref == "" || strings.EqualFold(pref, "C") || strings.EqualFold(pref, "POSIX") {
		return DefaultLocale
	}
	for _, code := range c.codes {
		if strings.EqualFold(code, pref) {
			return code
		}
	}
	tag, err := language.Parse(pref)
	if err != nil {
		return DefaultLocale
	}
	_, index, confidence := c.matcher.Match(tag)
	if confidence == language.No {
		return DefaultLocale
	}
	return c.codes[index]
}

// SetLocale activates the closest supported locale and returns it.
func (c *Catalog) SetLocale(pref string) string {
	code := c.Match(pref)
	c.mu.Lock()
	c.active = code
	c.mu.Unlock()
	return code
}

// Locale returns the active locale code.
func (c *Catalog) Locale() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// T returns the active-locale string for key with {name} placeholders
// substituted. A key missing from the active locale falls back to the
// default locale; a key missing from both yields the key itself.
func (c *Catalog) T(key string, params map[string]string) string {
	c.mu.RLock()
	text, ok := c.tables[c.active][key]
	if !ok {
		text, ok = c.tables[DefaultLocale][key]
	}
	c.mu.RUnlock()
	if !ok {
		return key
	}
	for name, value := range params {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Localize maps a service message id to active-locale text.
//
// A lookup that returns the id unchanged is a miss, so fallback is returned;
// an absent id also returns fallback.
func (c *Catalog) Localize(messageID, fallback string) string {
	if messageID == "" {
		return fallback
	}
	text := c.T(messageID, nil)
	if text == messageID {
		return fallback
	}
	return text
}

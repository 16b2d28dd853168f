package responder

import (
	"embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed catalog/*.toml
var catalogFS embed.FS

// Languages is the order in which language blocks are evaluated.
var Languages = []string{"en", "fr", "es", "pt", "ar", "sr"}

type catalogFile struct {
	Language string `toml:"language"`
	Rules    []Rule `toml:"rule"`
}

// LoadCatalog decodes the embedded catalog of one language.
func LoadCatalog(lang string) ([]Rule, error) {
	path := "catalog/" + lang + ".toml"
	data, err := catalogFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	meta, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("catalog %s: unknown keys %v", path, undecoded)
	}
	if file.Language != lang {
		return nil, fmt.Errorf("catalog %s declares language %q", path, file.Language)
	}

	for i := range file.Rules {
		file.Rules[i].Language = lang
	}
	return file.Rules, nil
}

// Load builds a Matcher from every embedded catalog, in Languages order.
func Load() (*Matcher, error) {
	var rules []Rule
	for _, lang := range Languages {
		langRules, err := LoadCatalog(lang)
		if err != nil {
			return nil, err
		}
		rules = append(rules, langRules...)
	}
	return New(rules)
}

var (
	defaultOnce   sync.Once
	sharedMatcher *Matcher
	defaultErr    error
)

// Default returns the process-wide Matcher built from the embedded catalogs.
func Default() (*Matcher, error) {
	defaultOnce.Do(func() {
		sharedMatcher, defaultErr = Load()
	})
	return sharedMatcher, defaultErr
}

// Package i18n holds the bot's reply strings, keyed by message id and
// Telegram language code. Bundles are YAML files compiled into the
// binary; completeness of any given locale is not a goal, missing keys
// fall back to English and then to the key itself.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const fallbackLang = "en"

type Bundle struct {
	locales map[string]map[string]string
}

// Load parses every embedded locale file. The file name (minus extension)
// is the language code.
func Load() (*Bundle, error) {
	entries, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, err
	}
	b := &Bundle{locales: make(map[string]map[string]string)}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") {
			continue
		}
		raw, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, err
		}
		msgs := make(map[string]string)
		if err := yaml.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("locale %s: %w", name, err)
		}
		b.locales[strings.TrimSuffix(name, ".yaml")] = msgs
	}
	if _, ok := b.locales[fallbackLang]; !ok {
		return nil, fmt.Errorf("missing fallback locale %q", fallbackLang)
	}
	return b, nil
}

// T renders the message for key in lang, formatting args with the
// message's printf verbs. Unknown languages fall back to English; an
// unknown key renders as the key so a missing string is visible instead
// of silent.
func (b *Bundle) T(lang, key string, args ...any) string {
	if b == nil {
		return key
	}
	lang = normalizeLang(lang)
	msg, ok := b.lookup(lang, key)
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Languages lists the loaded locale codes.
func (b *Bundle) Languages() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.locales))
	for lang := range b.locales {
		out = append(out, lang)
	}
	return out
}

func (b *Bundle) lookup(lang, key string) (string, bool) {
	if msgs, ok := b.locales[lang]; ok {
		if msg, ok := msgs[key]; ok {
			return msg, true
		}
	}
	if lang != fallbackLang {
		if msg, ok := b.locales[fallbackLang][key]; ok {
			return msg, true
		}
	}
	return "", false
}

// normalizeLang maps Telegram language codes like "es-419" or "pt-BR"
// onto a bundle language.
func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return fallbackLang
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}

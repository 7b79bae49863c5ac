// Package messages holds the user-facing strings of the Click Fit API.
//
// Bundles are TOML files, one per locale, embedded in the binary. Tables
// nest keys, so
//
//	[upload]
//	success = "File uploaded successfully"
//
// is looked up as "upload.success". Values are text/template strings.
//
// The locale of a request comes from, in order: the "locale" query
// parameter, the "locale" cookie, the Accept-Language header, and finally
// the manager's default locale.
package messages

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/kdsmith18542/clickfit/observability"
)

//go:embed locales/*.toml
var embedded embed.FS

// Manager holds every loaded locale. It is safe for concurrent use.
type Manager struct {
	mu            sync.RWMutex
	locales       map[string]map[string]string
	defaultLocale string
}

// Translator renders messages for one locale.
type Translator struct {
	locale  string
	manager *Manager
}

// NewManager loads the embedded bundles. An unknown defaultLocale falls
// back to "en".
func NewManager(defaultLocale string) (*Manager, error) {
	return Open(embedded, "locales", defaultLocale)
}

// Open loads only the bundles found in dir of fsys.
func Open(fsys fs.FS, dir, defaultLocale string) (*Manager, error) {
	m := &Manager{locales: make(map[string]map[string]string), defaultLocale: "en"}
	if err := m.LoadFS(fsys, dir); err != nil {
		return nil, err
	}
	if m.HasLocale(defaultLocale) {
		m.defaultLocale = strings.ToLower(defaultLocale)
	}
	return m, nil
}

// LoadFS reads every *.toml file in dir of fsys. Files for a locale that is
// already loaded replace it.
func (m *Manager) LoadFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read locales directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".toml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		if err := m.Load(strings.TrimSuffix(entry.Name(), ".toml"), data); err != nil {
			return err
		}
	}
	return nil
}

// Load parses one TOML bundle for locale.
func (m *Manager) Load(locale string, data []byte) error {
	var raw map[string]interface{}
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return fmt.Errorf("failed to parse %s bundle: %w", locale, err)
	}
	flat := make(map[string]string)
	flatten("", raw, flat)

	m.mu.Lock()
	m.locales[strings.ToLower(locale)] = flat
	m.mu.Unlock()
	return nil
}

func flatten(prefix string, in map[string]interface{}, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// HasLocale reports whether locale is loaded.
func (m *Manager) HasLocale(locale string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locales[strings.ToLower(locale)]
	return ok
}

// Locales returns the loaded locale codes, sorted.
func (m *Manager) Locales() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.locales))
	for code := range m.locales {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Missing returns, per locale, the sorted keys that another loaded locale
// defines and this one lacks. Complete locales are omitted.
func (m *Manager) Missing() map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make(map[string]struct{})
	for _, msgs := range m.locales {
		for key := range msgs {
			all[key] = struct{}{}
		}
	}
	out := make(map[string][]string)
	for code, msgs := range m.locales {
		for key := range all {
			if _, ok := msgs[key]; !ok {
				out[code] = append(out[code], key)
			}
		}
		sort.Strings(out[code])
	}
	for code, keys := range out {
		if len(keys) == 0 {
			delete(out, code)
		}
	}
	return out
}

// DefaultLocale returns the locale used when detection finds nothing.
func (m *Manager) DefaultLocale() string {
	return m.defaultLocale
}

// For returns a translator bound to locale, or to the default locale when
// locale is not loaded.
func (m *Manager) For(locale string) *Translator {
	if !m.HasLocale(locale) {
		locale = m.defaultLocale
	}
	return &Translator{locale: strings.ToLower(locale), manager: m}
}

// Translator detects the locale of r and returns a translator for it.
func (m *Manager) Translator(r *http.Request) *Translator {
	locale, fallback := m.detect(r)
	observability.GetObserver().OnLocaleDetection(r.Context(), locale, fallback)
	return &Translator{locale: locale, manager: m}
}

func (m *Manager) detect(r *http.Request) (string, bool) {
	if locale := r.URL.Query().Get("locale"); locale != "" && m.HasLocale(locale) {
		return strings.ToLower(locale), false
	}
	if cookie, err := r.Cookie("locale"); err == nil && m.HasLocale(cookie.Value) {
		return strings.ToLower(cookie.Value), false
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		if locale := m.parseAcceptLanguage(header); locale != "" {
			return locale, false
		}
	}
	return m.defaultLocale, true
}

// parseAcceptLanguage picks the first listed language that is loaded, by
// its primary subtag ("es-MX" matches "es"). Quality values are ignored;
// browsers already list languages in preference order.
func (m *Manager) parseAcceptLanguage(header string) string {
	for _, lang := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(lang, ";", 2)[0])
		primary := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if primary != "" && primary != "*" && m.HasLocale(primary) {
			return primary
		}
	}
	return ""
}

func (m *Manager) lookup(locale, key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if msg, ok := m.locales[locale][key]; ok {
		return msg, true
	}
	if msg, ok := m.locales[m.defaultLocale][key]; ok {
		return msg, true
	}
	return "", false
}

// Locale returns the translator's locale code.
func (t *Translator) Locale() string {
	return t.locale
}

// T renders key with params. A missing key renders as the key itself.
func (t *Translator) T(key string, params map[string]interface{}) string {
	msg, ok := t.manager.lookup(t.locale, key)
	if !ok {
		return key
	}
	return render(msg, params)
}

// Lookup is T that also reports whether key exists.
func (t *Translator) Lookup(key string, params map[string]interface{}) (string, bool) {
	msg, ok := t.manager.lookup(t.locale, key)
	if !ok {
		return "", false
	}
	return render(msg, params), true
}

// FormatBytes renders a byte count in binary units, e.g. "5.0 MiB".
func (t *Translator) FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func render(msg string, params map[string]interface{}) string {
	if !strings.Contains(msg, "{{") {
		return msg
	}
	tmpl, err := template.New("msg").Option("missingkey=zero").Parse(msg)
	if err != nil {
		return msg
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, params); err != nil {
		return msg
	}
	return buf.String()
}

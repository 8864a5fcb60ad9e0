package notifications

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Template keys every catalog must define.
const (
	TemplateResultReady       = "result_ready"
	TemplateAppointmentBooked = "appointment_booked"
	TemplateTestBooked        = "test_booked"
	TemplateStatusConfirmed   = "status_confirmed"
	TemplateStatusCancelled   = "status_cancelled"
	TemplateStatusCompleted   = "status_completed"
	TemplateStatusOther       = "status_other"
	TemplateReminder          = "reminder"
)

var requiredTemplates = []string{
	TemplateResultReady,
	TemplateAppointmentBooked,
	TemplateTestBooked,
	TemplateStatusConfirmed,
	TemplateStatusCancelled,
	TemplateStatusCompleted,
	TemplateStatusOther,
	TemplateReminder,
}

//go:embed templates.yaml
var defaultTemplates []byte

// Template is a title and body with {placeholder} markers.
type Template struct {
	Title string `yaml:"title"`
	Body  string `yaml:"body"`
}

// Vars are placeholder values keyed by name without braces.
type Vars map[string]string

// Catalog holds the notification copy keyed by template name.
type Catalog struct {
	templates map[string]Template
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultTemplates))
})

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := defaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog parses a YAML catalog and checks every required template is present.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var doc struct {
		Templates map[string]Template `yaml:"templates"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Join(ErrCatalogLoad, err)
	}

	var missing []error
	for _, key := range requiredTemplates {
		t, ok := doc.Templates[key]
		if !ok || strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Body) == "" {
			missing = append(missing, fmt.Errorf("%w: %s", ErrTemplateNotFound, key))
		}
	}
	if len(missing) > 0 {
		return nil, errors.Join(append([]error{ErrCatalogLoad}, missing...)...)
	}
	return &Catalog{templates: doc.Templates}, nil
}

// LoadCatalogFile reads a catalog from path. An empty path yields the built-in catalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	if path == "" {
		return defaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Join(ErrCatalogLoad, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

// Render fills the named template with vars.
func (c *Catalog) Render(key string, vars Vars) (title, body string, err error) {
	if _, ok := c.templates[key]; !ok {
		return "", "", fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	title, body = c.fill(key, vars)
	return title, body, nil
}

// fill renders a template known to exist.
func (c *Catalog) fill(key string, vars Vars) (string, string) {
	t := c.templates[key]
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Title), r.Replace(t.Body)
}

/*
Package factory provides YAML/JSON to Go source profile conversion.

PURPOSE:
  Converts profile definitions into recon.SourceConfig values. A profile
  declares how each upstream system writes its schedule: the date layouts
  it uses and any header names that differ from the canonical columns.
  Operations can onboard a new partner by dropping a file into the
  profiles directory, with no code change.

FILE FORMAT (YAML, JSON is accepted too):
  id: acme-bank
  name: ACME Bank exports
  partner:
    date_layouts: ["02/01/2006", "2006/01/02"]
    columns:
      LAN: LoanAccountNo
      InstalmentNumber: EMI No
  lms:
    date_layouts: ["2006-01-02"]
  system:                       # optional
    date_layouts: ["2006-01-02"]

VALIDATION:
  - id: lowercase letters, digits and dashes
  - date_layouts: at least one, each must round-trip a reference date
  - columns: keys must be canonical column names, values non-empty,
    no two canonical columns may share a header
  All problems are reported together (go-multierror), wrapped in
  recon.ErrInvalidProfile.

USAGE:
  f := factory.NewProfileFactory()
  reg, err := f.LoadDir("profiles")
  profile, err := reg.Get("acme-bank")
  res, err := engine.Reconcile(profile.PartnerSource(pt), profile.LMSSource(lt))

SEE ALSO:
  - recon/table.go: SourceConfig and canonical columns
  - profiles/: Profile files shipped with the service
*/
package factory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/warp/schedule-recon/recon"
	"gopkg.in/yaml.v3"
)

// DefaultProfileID names the built-in profile.
const DefaultProfileID = "default"

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// ProfileJSON is the file representation of a profile.
type ProfileJSON struct {
	ID          string      `json:"id" yaml:"id" validate:"required,profile_id"`
	Name        string      `json:"name" yaml:"name" validate:"required"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Partner     SourceJSON  `json:"partner" yaml:"partner"`
	LMS         SourceJSON  `json:"lms" yaml:"lms"`
	System      *SourceJSON `json:"system,omitempty" yaml:"system,omitempty"`
}

// SourceJSON describes one source.
type SourceJSON struct {
	DateLayouts []string          `json:"date_layouts" yaml:"date_layouts" validate:"required,min=1,dive,required,date_layout"`
	Columns     map[string]string `json:"columns,omitempty" yaml:"columns,omitempty" validate:"omitempty,dive,keys,canonical_column,endkeys,required"`
}

// =============================================================================
// PROFILE
// =============================================================================

// Profile is a validated set of source configurations.
type Profile struct {
	ID          string
	Name        string
	Description string
	Partner     recon.SourceConfig
	LMS         recon.SourceConfig
	System      recon.SourceConfig
}

func (p *Profile) PartnerSource(t recon.Table) recon.Source {
	return recon.Source{Config: cloneConfig(p.Partner), Table: t}
}

func (p *Profile) LMSSource(t recon.Table) recon.Source {
	return recon.Source{Config: cloneConfig(p.LMS), Table: t}
}

func (p *Profile) SystemSource(t recon.Table) recon.Source {
	return recon.Source{Config: cloneConfig(p.System), Table: t}
}

func cloneConfig(c recon.SourceConfig) recon.SourceConfig {
	if c.Columns != nil {
		cols := make(map[string]string, len(c.Columns))
		for k, v := range c.Columns {
			cols[k] = v
		}
		c.Columns = cols
	}
	return c
}

// DefaultProfile uses each system's documented date notation and the
// canonical headers.
func DefaultProfile() *Profile {
	return &Profile{
		ID:          DefaultProfileID,
		Name:        "Default",
		Description: "Partner dates as 2006/01/02, LMS and system dates as 2006-01-02, canonical headers",
		Partner:     recon.DefaultPartnerConfig(),
		LMS:         recon.DefaultLMSConfig(),
		System:      recon.DefaultSystemConfig(),
	}
}

// =============================================================================
// PROFILE FACTORY
// =============================================================================

// ProfileFactory converts profile files to Profiles.
type ProfileFactory struct {
	validate *validator.Validate
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// layoutProbe is a date with distinct day, month and year so every
// layout element is exercised.
var layoutProbe = time.Date(2024, time.November, 23, 0, 0, 0, 0, time.UTC)

// NewProfileFactory creates a factory with the profile validators registered.
func NewProfileFactory() *ProfileFactory {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("profile_id", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("date_layout", func(fl validator.FieldLevel) bool {
		layout := fl.Field().String()
		parsed, err := time.Parse(layout, layoutProbe.Format(layout))
		return err == nil && parsed.Equal(layoutProbe)
	})
	_ = v.RegisterValidation("canonical_column", func(fl validator.FieldLevel) bool {
		return isCanonical(fl.Field().String())
	})
	return &ProfileFactory{validate: v}
}

func isCanonical(col string) bool {
	for _, c := range recon.RequiredColumns(recon.SourceLMS) {
		if c == col {
			return true
		}
	}
	return false
}

// ParseProfile parses a YAML or JSON document into a Profile.
func (f *ProfileFactory) ParseProfile(data []byte) (*Profile, error) {
	var pj ProfileJSON
	if err := yaml.Unmarshal(data, &pj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse profile: %v", recon.ErrInvalidProfile, err)
	}
	return f.FromJSON(pj)
}

// ParseProfileFile reads and parses one profile file.
func (f *ProfileFactory) ParseProfileFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}
	p, err := f.ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return p, nil
}

// FromJSON validates a ProfileJSON and converts it.
func (f *ProfileFactory) FromJSON(pj ProfileJSON) (*Profile, error) {
	if err := f.check(pj); err != nil {
		return nil, err
	}

	p := &Profile{
		ID:          pj.ID,
		Name:        pj.Name,
		Description: pj.Description,
		Partner:     toConfig(recon.SourcePartner, pj.Partner),
		LMS:         toConfig(recon.SourceLMS, pj.LMS),
		System:      recon.DefaultSystemConfig(),
	}
	if pj.System != nil {
		p.System = toConfig(recon.SourceSystem, *pj.System)
	}
	return p, nil
}

func toConfig(kind recon.SourceKind, sj SourceJSON) recon.SourceConfig {
	cfg := recon.SourceConfig{
		Kind:  kind,
		Name:  string(kind),
		Dates: recon.NewLayoutRule(sj.DateLayouts...),
	}
	if len(sj.Columns) > 0 {
		cfg.Columns = make(map[string]string, len(sj.Columns))
		for k, v := range sj.Columns {
			cfg.Columns[k] = strings.TrimSpace(v)
		}
	}
	return cfg
}

// check runs struct validation plus the cross-field rules and returns
// every problem found.
func (f *ProfileFactory) check(pj ProfileJSON) error {
	var errs *multierror.Error

	if err := f.validate.Struct(pj); err != nil {
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) {
			for _, ve := range valErrs {
				errs = multierror.Append(errs, fmt.Errorf("%s: failed %q", ve.Namespace(), ve.Tag()))
			}
		} else {
			errs = multierror.Append(errs, err)
		}
	}

	sources := map[string]*SourceJSON{"partner": &pj.Partner, "lms": &pj.LMS, "system": pj.System}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if sj := sources[name]; sj != nil {
			for _, err := range headerCollisions(name, sj.Columns) {
				errs = multierror.Append(errs, err)
			}
		}
	}

	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: profile %q: %w", recon.ErrInvalidProfile, pj.ID, err)
	}
	return nil
}

// headerCollisions reports two canonical columns that resolve to the same
// header, including a canonical column left as-is and an alias equal to it.
func headerCollisions(source string, columns map[string]string) []error {
	resolved := make(map[string]string)
	var errs []error
	for _, col := range recon.RequiredColumns(recon.SourceLMS) {
		h := col
		if alias, ok := columns[col]; ok && strings.TrimSpace(alias) != "" {
			h = alias
		}
		key := strings.ToLower(strings.TrimSpace(h))
		if other, ok := resolved[key]; ok {
			errs = append(errs, fmt.Errorf("%s.columns: %s and %s both map to header %q", source, other, col, h))
			continue
		}
		resolved[key] = col
	}
	return errs
}

// LoadDir parses every .yaml, .yml and .json file in dir into a registry
// that also holds the default profile. All invalid files are reported.
func (f *ProfileFactory) LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	var errs *multierror.Error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		p, err := f.ParseProfileFile(filepath.Join(dir, e.Name()))
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if err := reg.Register(p); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return reg, nil
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds profiles by id. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	builtin  *Profile
}

// NewRegistry returns a registry holding the default profile.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]*Profile), builtin: DefaultProfile()}
	r.profiles[DefaultProfileID] = r.builtin
	return r
}

// Register adds a profile. A file may replace the default profile but
// two files may not share an id.
func (r *Registry) Register(p *Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.profiles[p.ID]; ok && existing != r.builtin {
		return fmt.Errorf("%w: profile %q defined twice", recon.ErrInvalidProfile, p.ID)
	}
	r.profiles[p.ID] = p
	return nil
}

// Get returns a profile; the empty id selects the default.
func (r *Registry) Get(id string) (*Profile, error) {
	if id == "" {
		id = DefaultProfileID
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown profile %q", recon.ErrInvalidProfile, id)
	}
	return p, nil
}

// List returns all profiles ordered by id.
func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

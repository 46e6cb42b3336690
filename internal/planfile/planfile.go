// Package planfile reads and writes plans as YAML documents so a plan can be
// reviewed, edited and resolved without going through the generator.
package planfile

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	shopscale "github.com/ZanzyTHEbar/shopscale-genkit"
	"github.com/ZanzyTHEbar/shopscale-genkit/internal/extractor"
)

// PlanFile is the on-disk form of a plan.
type PlanFile struct {
	Name        string      `yaml:"name,omitempty"`
	Description string      `yaml:"description,omitempty"`
	Query       string      `yaml:"query,omitempty"`
	Intent      string      `yaml:"intent"`
	Steps       []FileEntry `yaml:"search_steps"`
}

// FileEntry is one search step.
type FileEntry struct {
	Q       string            `yaml:"q"`
	Filters map[string]string `yaml:"filters,omitempty"`
}

// Loader loads a PlanFile from a path.
type Loader interface {
	Load(path string) (*PlanFile, error)
	Format() string // e.g., "yaml"
}

var (
	registryMu     sync.RWMutex
	loaderRegistry = make(map[string]Loader)
)

// RegisterLoader registers a Loader for its format.
func RegisterLoader(loader Loader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	loaderRegistry[loader.Format()] = loader
}

// GetLoader retrieves a loader by format name.
func GetLoader(format string) (Loader, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	loader, ok := loaderRegistry[format]
	return loader, ok
}

// YAMLLoader implements Loader for YAML files. JSON documents load too.
type YAMLLoader struct{}

func (YAMLLoader) Load(path string) (*PlanFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, shopscale.NewNotFoundError(shopscale.StageInit, fmt.Sprintf("failed to open plan file: %v", err))
	}
	defer f.Close()
	return Decode(f)
}

func (YAMLLoader) Format() string { return "yaml" }

func init() {
	RegisterLoader(YAMLLoader{})
}

// Decode parses one plan document from r.
func Decode(r io.Reader) (*PlanFile, error) {
	var pf PlanFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return nil, shopscale.NewValidationError(shopscale.StageInit, "failed to parse plan YAML", err)
	}
	return &pf, nil
}

// Validate checks the intent label and that every step has search text.
func (pf *PlanFile) Validate() error {
	if !shopscale.Intent(strings.ToLower(strings.TrimSpace(pf.Intent))).Valid() {
		return shopscale.NewValidationError(shopscale.StageInit, fmt.Sprintf("unknown intent %q", pf.Intent), nil)
	}
	validate := extractor.NewValidator()
	for i, entry := range pf.Steps {
		if err := validate.Struct(shopscale.NewSearchDirective(entry.Q, entry.Filters)); err != nil {
			return shopscale.NewValidationError(shopscale.StageInit, fmt.Sprintf("step %d has blank search text", i), err)
		}
	}
	return nil
}

// ToPlan converts the file to a Plan.
func (pf *PlanFile) ToPlan() *shopscale.Plan {
	plan := &shopscale.Plan{
		Intent: shopscale.Intent(strings.ToLower(strings.TrimSpace(pf.Intent))),
		Steps:  make([]shopscale.SearchDirective, 0, len(pf.Steps)),
	}
	for _, entry := range pf.Steps {
		plan.Steps = append(plan.Steps, shopscale.NewSearchDirective(entry.Q, entry.Filters))
	}
	return plan
}

// FromPlan builds the file form of plan.
func FromPlan(query string, plan *shopscale.Plan) *PlanFile {
	pf := &PlanFile{Query: query}
	if plan == nil {
		return pf
	}
	pf.Intent = string(plan.Intent)
	for _, d := range plan.Steps {
		pf.Steps = append(pf.Steps, FileEntry{Q: d.SearchText, Filters: d.Filters})
	}
	return pf
}

// Encode writes pf as YAML.
func Encode(w io.Writer, pf *PlanFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(pf); err != nil {
		return shopscale.NewInternalError(shopscale.StageInit, "failed to encode plan YAML", err)
	}
	return enc.Close()
}

// Save writes pf to path, creating parent directories.
func Save(path string, pf *PlanFile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return shopscale.NewInternalError(shopscale.StageInit, "failed to create plan directory", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return shopscale.NewInternalError(shopscale.StageInit, "failed to create plan file", err)
	}
	if err := Encode(f, pf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadAndValidate loads path with the YAML loader, validates it and returns the plan.
func LoadAndValidate(path string) (*shopscale.Plan, error) {
	loader, ok := GetLoader("yaml")
	if !ok {
		return nil, shopscale.NewConfigurationError("no YAML plan loader registered", nil)
	}
	pf, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return pf.ToPlan(), nil
}

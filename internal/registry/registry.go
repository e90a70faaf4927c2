package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"worker-cli/internal/logger"
)

var log = logger.Named("registry")

// NotFoundError reports a worker name with no definition file, with fuzzy
// suggestions from the registry when close names exist.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("worker %q not found", e.Name)
	}
	return fmt.Sprintf("worker %q not found (did you mean %s?)", e.Name, strings.Join(e.Suggestions, ", "))
}

// ParseError reports a definition file that exists but cannot be used.
type ParseError struct {
	Name string
	Path string
	Err  error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("worker %q: parse %s: %v", e.Name, e.Path, e.Err)
}

func (e ParseError) Unwrap() error { return e.Err }

// LockedError reports a refused overwrite of a locked definition.
type LockedError struct {
	Name string
}

func (e LockedError) Error() string {
	return fmt.Sprintf("worker %q is locked; pass force to overwrite", e.Name)
}

// Registry stores one YAML document per worker under a root directory.
type Registry struct {
	root string
}

func New(root string) *Registry {
	return &Registry{root: root}
}

func (r *Registry) Root() string { return r.root }

func (r *Registry) path(name string) string {
	return filepath.Join(r.root, name+".yaml")
}

// Load reads and validates a worker definition.
func (r *Registry) Load(name string) (*Definition, error) {
	if !workerNameRE.MatchString(name) {
		return nil, NotFoundError{Name: name}
	}
	data, err := os.ReadFile(r.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NotFoundError{Name: name, Suggestions: r.suggest(name)}
		}
		return nil, err
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, ParseError{Name: name, Path: r.path(name), Err: err}
	}
	if def.Name == "" {
		def.Name = name
	}
	if def.Name != name {
		return nil, ParseError{Name: name, Path: r.path(name), Err: fmt.Errorf("definition names %q", def.Name)}
	}
	if err := def.Validate(); err != nil {
		return nil, ParseError{Name: name, Path: r.path(name), Err: err}
	}
	return &def, nil
}

// Save persists a definition. An existing definition whose persisted locked
// flag is true is only overwritten with force, and force must come from the
// invoking host; the model-facing creation tool always passes false. Fresh
// definitions are persisted unlocked no matter what the caller set.
func (r *Registry) Save(def *Definition, force bool) error {
	if err := def.Validate(); err != nil {
		return err
	}
	existing, err := r.Load(def.Name)
	if err == nil {
		if existing.Locked && !force {
			return LockedError{Name: def.Name}
		}
	} else {
		var notFound NotFoundError
		if !errors.As(err, &notFound) {
			// An unreadable existing file fails closed rather than being
			// silently replaced.
			return err
		}
		def.Locked = false
	}

	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(def)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path(def.Name), data, 0o644); err != nil {
		return err
	}
	log.WithField("worker", def.Name).WithField("force", force).Info("definition saved")
	return nil
}

// List returns the sorted worker names present in the registry root.
func (r *Registry) List() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		if !strings.HasSuffix(base, ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(base, ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// ReadSchema loads the JSON document an output_schema_ref points at,
// resolved relative to the registry root.
func (r *Registry) ReadSchema(ref string) ([]byte, error) {
	if filepath.IsAbs(ref) || strings.HasPrefix(filepath.ToSlash(filepath.Clean(ref)), "..") {
		return nil, fmt.Errorf("schema ref %q must stay inside the registry root", ref)
	}
	return os.ReadFile(filepath.Join(r.root, ref))
}

func (r *Registry) suggest(name string) []string {
	names, err := r.List()
	if err != nil || len(names) == 0 {
		return nil
	}
	matches := fuzzy.Find(name, names)
	limit := 3
	if len(matches) < limit {
		limit = len(matches)
	}
	out := make([]string, 0, limit)
	for _, m := range matches[:limit] {
		out = append(out, m.Str)
	}
	return out
}

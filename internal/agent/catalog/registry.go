package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Apothic-AI/bufo/internal/common/logger"
	"github.com/Apothic-AI/bufo/internal/common/paths"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// ErrUnknownAgent is returned by Resolve for names the catalog does not know.
var ErrUnknownAgent = errors.New("unknown agent")

// catalogFile is the on-disk shape of a definition file.
type catalogFile struct {
	Agents []Descriptor `yaml:"agents"`
}

// Registry loads agent definitions. Embedded defaults come first, then the
// user override directory, then any extra directories; later files replace
// earlier descriptors with the same identity.
type Registry struct {
	logger    *logger.Logger
	extraDirs []string
}

// NewRegistry creates a registry. extraDirs are searched after the user
// override directory.
func NewRegistry(log *logger.Logger, extraDirs ...string) *Registry {
	if log == nil {
		log = logger.Default()
	}
	dirs := make([]string, 0, len(extraDirs))
	for _, d := range extraDirs {
		if strings.TrimSpace(d) != "" {
			dirs = append(dirs, d)
		}
	}
	return &Registry{logger: log.WithFields(zap.String("component", "agent-catalog")), extraDirs: dirs}
}

// Load reads every definition source and merges descriptors by identity.
// A file that fails to parse produces a warning, not an error: one broken
// override must not take the whole catalog down.
func (r *Registry) Load() (*Catalog, error) {
	var warnings []string
	byIdentity := make(map[string]Descriptor)

	merge := func(descriptors []Descriptor) {
		for _, d := range descriptors {
			byIdentity[d.Identity] = d
		}
	}

	defaults, err := r.loadEmbedded(&warnings)
	if err != nil {
		return nil, err
	}
	merge(defaults)

	if userDir, err := paths.CustomAgentsDir(); err == nil {
		merge(r.loadDir(userDir, &warnings))
	} else {
		warnings = append(warnings, fmt.Sprintf("user agents dir: %v", err))
	}
	for _, dir := range r.extraDirs {
		merge(r.loadDir(dir, &warnings))
	}

	agents := make([]Descriptor, 0, len(byIdentity))
	for _, d := range byIdentity {
		agents = append(agents, d)
	}
	sort.Slice(agents, func(i, j int) bool {
		return strings.ToLower(agents[i].Name) < strings.ToLower(agents[j].Name)
	})

	for _, w := range warnings {
		r.logger.Warn("agent definition skipped", zap.String("reason", w))
	}
	r.logger.Debug("agent catalog loaded",
		zap.Int("agents", len(agents)), zap.Int("warnings", len(warnings)))

	return newCatalog(agents, warnings), nil
}

func (r *Registry) loadEmbedded(warnings *[]string) ([]Descriptor, error) {
	names, err := fs.Glob(defaultsFS, "defaults/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("list embedded defaults: %w", err)
	}
	sort.Strings(names)

	var out []Descriptor
	for _, name := range names {
		data, err := defaultsFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read embedded defaults %s: %w", name, err)
		}
		out = append(out, parseFile(filepath.Base(name), data, warnings)...)
	}
	if len(out) == 0 {
		return nil, errors.New("no embedded agent defaults")
	}
	return out, nil
}

func (r *Registry) loadDir(dir string, warnings *[]string) []Descriptor {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// A missing override directory is the normal case.
		if !errors.Is(err, fs.ErrNotExist) {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", dir, err))
		}
		return nil
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var out []Descriptor
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		out = append(out, parseFile(name, data, warnings)...)
	}
	return out
}

func parseFile(name string, data []byte, warnings *[]string) []Descriptor {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("%s: %v", name, err))
		return nil
	}

	out := make([]Descriptor, 0, len(file.Agents))
	for _, d := range file.Agents {
		if err := d.validate(runtime.GOOS); err != nil {
			*warnings = append(*warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if d.Protocol == "" {
			d.Protocol = "acp"
		}
		if d.Category == "" {
			d.Category = "coding"
		}
		out = append(out, d)
	}
	return out
}

// Catalog is an immutable snapshot of loaded agent definitions.
type Catalog struct {
	agents     []Descriptor
	byIdentity map[string]int
	warnings   []string
}

func newCatalog(agents []Descriptor, warnings []string) *Catalog {
	byIdentity := make(map[string]int, len(agents))
	for i, d := range agents {
		byIdentity[d.Identity] = i
	}
	return &Catalog{agents: agents, byIdentity: byIdentity, warnings: warnings}
}

// Agents returns all descriptors sorted by name.
func (c *Catalog) Agents() []Descriptor {
	out := make([]Descriptor, len(c.agents))
	copy(out, c.agents)
	return out
}

// Warnings returns the problems encountered while loading, one line per
// skipped file or descriptor.
func (c *Catalog) Warnings() []string {
	out := make([]string, len(c.warnings))
	copy(out, c.warnings)
	return out
}

// Resolve finds a descriptor by identity, or by display name ignoring case.
func (c *Catalog) Resolve(name string) (*Descriptor, error) {
	if i, ok := c.byIdentity[name]; ok {
		d := c.agents[i]
		return &d, nil
	}
	lower := strings.ToLower(name)
	for _, d := range c.agents {
		if strings.ToLower(d.Name) == lower || strings.ToLower(d.Identity) == lower {
			d := d
			return &d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
}

// Default returns the descriptor to preselect: the first marked
// launcherDefault, else the first recommended, else the first by name.
// Nil when the catalog is empty.
func (c *Catalog) Default() *Descriptor {
	for _, d := range c.agents {
		if d.LauncherDefault {
			d := d
			return &d
		}
	}
	for _, d := range c.agents {
		if d.Recommended {
			d := d
			return &d
		}
	}
	if len(c.agents) > 0 {
		d := c.agents[0]
		return &d
	}
	return nil
}

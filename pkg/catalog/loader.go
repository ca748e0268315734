package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bastiangx/pickserve/pkg/autocomplete"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.toml
var builtinTOML []byte

// entry is one candidate as written in a catalog file.
type entry struct {
	ID    string            `toml:"id" yaml:"id"`
	Label string            `toml:"label" yaml:"label"`
	Meta  map[string]string `toml:"meta" yaml:"meta"`
}

type fileSchema struct {
	Lists map[string][]entry  `toml:"lists" yaml:"lists"`
	Fill  map[string]FillRule `toml:"fill" yaml:"fill"`
}

// Builtin returns the sample catalog compiled into the binary.
func Builtin() *Catalog {
	cat, err := Parse(builtinTOML, FormatTOML, "builtin")
	if err != nil {
		log.Errorf("Builtin catalog is invalid: %v", err)
	}
	return cat
}

// Load reads every catalog file in paths, in order. A directory contributes its
// catalog files in name order. Lists with the same name are concatenated.
// Files that fail do not stop the others; their errors are returned together
// along with whatever did load.
func Load(paths ...string) (*Catalog, error) {
	cat := New()
	var result *multierror.Error

	files, err := expand(paths)
	if err != nil {
		result = multierror.Append(result, err)
	}

	for _, path := range files {
		part, err := LoadFile(path)
		if err != nil {
			result = multierror.Append(result, err)
		}
		cat.Merge(part)
	}

	log.Debugf("Loaded catalog: %d lists, %d candidates from %d files", cat.Len(), cat.Count(), len(files))
	return cat, result.ErrorOrNil()
}

// Files returns the catalog files named by paths, expanding directories.
func Files(paths ...string) ([]string, error) {
	return expand(paths)
}

func expand(paths []string) ([]string, error) {
	var (
		files  []string
		result *multierror.Error
	)
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("catalog path %s: %w", p, err))
			continue
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("catalog dir %s: %w", p, err))
			continue
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && IsCatalogFile(e.Name()) {
				found = append(found, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, result.ErrorOrNil()
}

// LoadFile reads one TOML or YAML catalog file.
func LoadFile(path string) (*Catalog, error) {
	format, err := DetectFileFormat(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateFileFormat(path, format); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return Parse(data, format, path)
}

// Parse decodes catalog data. name only labels errors.
// Entries without a label are reported and skipped.
func Parse(data []byte, format FileFormat, name string) (*Catalog, error) {
	var (
		schema fileSchema
		order  []string
	)

	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &schema)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		order = tomlListOrder(md)
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			log.Warnf("Ignoring unknown keys in %s: %v", name, undecoded)
		}
	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if root.Kind != 0 {
			if err := root.Decode(&schema); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", name, err)
			}
		}
		order = yamlListOrder(&root)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, name)
	}

	cat := New()
	var result *multierror.Error

	for _, list := range completeOrder(order, schema.Lists) {
		if strings.TrimSpace(list) == "" {
			result = multierror.Append(result, fmt.Errorf("%s: list with empty name", name))
			continue
		}
		entries := schema.Lists[list]
		cands := make([]autocomplete.Candidate, 0, len(entries))
		for i, e := range entries {
			if strings.TrimSpace(e.Label) == "" {
				result = multierror.Append(result, fmt.Errorf("%s: list %s entry %d has no label", name, list, i+1))
				continue
			}
			cands = append(cands, autocomplete.Candidate{ID: e.ID, Label: e.Label, Meta: e.Meta})
		}
		cat.Add(list, cands...)
	}
	for list, rule := range schema.Fill {
		cat.SetFill(list, rule)
	}

	return cat, result.ErrorOrNil()
}

// tomlListOrder returns the list names in the order they appear in the file.
func tomlListOrder(md toml.MetaData) []string {
	var order []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != "lists" || seen[key[1]] {
			continue
		}
		seen[key[1]] = true
		order = append(order, key[1])
	}
	return order
}

// yamlListOrder reads the key order of the lists mapping.
func yamlListOrder(root *yaml.Node) []string {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "lists" {
			continue
		}
		lists := doc.Content[i+1]
		var order []string
		for j := 0; j+1 < len(lists.Content); j += 2 {
			order = append(order, lists.Content[j].Value)
		}
		return order
	}
	return nil
}

// completeOrder appends any list missing from order, sorted, so nothing is lost
// when the decoder reports no positions.
func completeOrder(order []string, lists map[string][]entry) []string {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(lists))
	for _, name := range order {
		if _, ok := lists[name]; ok && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	var rest []string
	for name := range lists {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

package classifier

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/moyu-x/file-organizer/internal/errs"
)

type Category struct {
	Name       string
	Extensions []string
}

// Conflict records an extension claimed by a later category and therefore
// ignored: the first category in declaration order keeps it.
type Conflict struct {
	Extension string
	Kept      string
	Ignored   string
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s claimed by %s, ignored for %s", c.Extension, c.Kept, c.Ignored)
}

// RuleSet maps extensions to categories. It is immutable once built.
type RuleSet struct {
	categories []Category
	index      map[string]string
}

var defaultCategories = []Category{
	{"Images", []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp", ".tiff", ".ico"}},
	{"Documents", []string{".pdf", ".docx", ".txt", ".rtf", ".odt", ".pages", ".doc"}},
	{"Videos", []string{".mp4", ".mov", ".avi", ".mkv", ".wmv", ".flv", ".webm", ".m4v"}},
	{"Audio", []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".wma", ".m4a"}},
	{"Archives", []string{".zip", ".tar.gz", ".rar", ".7z", ".tar", ".gz", ".bz2"}},
	{"Code", []string{".py", ".js", ".html", ".css", ".java", ".cpp", ".c", ".h", ".php", ".rb"}},
	{"Spreadsheets", []string{".xlsx", ".xls", ".csv", ".ods", ".numbers"}},
	{"Presentations", []string{".pptx", ".ppt", ".odp", ".key"}},
	{"Executables", []string{".exe", ".msi", ".dmg", ".pkg", ".deb", ".rpm", ".app"}},
	{"Fonts", []string{".ttf", ".otf", ".woff", ".woff2", ".eot"}},
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *RuleSet {
	rs, _, err := NewRuleSet(defaultCategories)
	if err != nil {
		panic(err)
	}
	return rs
}

func NewRuleSet(categories []Category) (*RuleSet, []Conflict, error) {
	rs := &RuleSet{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]string),
	}
	seen := make(map[string]bool, len(categories))
	var conflicts []Conflict

	for _, cat := range categories {
		name := strings.TrimSpace(cat.Name)
		if err := validateCategoryName(name); err != nil {
			return nil, nil, err
		}
		if seen[name] {
			return nil, nil, errs.Wrap(errs.ErrConfig, "rules", "", fmt.Sprintf("category %q declared twice", name), nil)
		}
		seen[name] = true

		exts := make([]string, 0, len(cat.Extensions))
		for _, raw := range cat.Extensions {
			ext, err := NormalizeExt(raw)
			if err != nil {
				return nil, nil, errs.Wrap(errs.ErrConfig, "rules", name, "", err)
			}
			if owner, ok := rs.index[ext]; ok {
				if owner != name {
					conflicts = append(conflicts, Conflict{Extension: ext, Kept: owner, Ignored: name})
				}
				continue
			}
			rs.index[ext] = name
			exts = append(exts, ext)
		}
		rs.categories = append(rs.categories, Category{Name: name, Extensions: exts})
	}

	return rs, conflicts, nil
}

// LoadRules reads a category document (JSON or YAML) mapping category names
// to extension lists. Document categories come first, in document order; a
// document category replaces the default of the same name, and the
// remaining defaults follow.
func LoadRules(fs afero.Fs, path string) (*RuleSet, []Conflict, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrConfig, "rules", "read", path, err)
	}

	declared, err := parseCategories(data)
	if err != nil {
		return nil, nil, errs.Wrap(errs.ErrConfig, "rules", "parse", path, err)
	}

	named := make(map[string]bool, len(declared))
	for _, c := range declared {
		named[strings.TrimSpace(c.Name)] = true
	}
	merged := append([]Category{}, declared...)
	for _, c := range defaultCategories {
		if !named[c.Name] {
			merged = append(merged, c)
		}
	}

	return NewRuleSet(merged)
}

func parseCategories(data []byte) ([]Category, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of category to extension list", root.Line)
	}

	categories := make([]Category, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: category name must be a string", key.Line)
		}
		if value.Kind != yaml.SequenceNode {
			return nil, fmt.Errorf("line %d: category %q must list extensions", value.Line, key.Value)
		}
		exts := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: extension must be a string", item.Line)
			}
			exts = append(exts, item.Value)
		}
		categories = append(categories, Category{Name: key.Value, Extensions: exts})
	}
	return categories, nil
}

// NormalizeExt lowercases ext and makes sure it carries one leading dot.
func NormalizeExt(ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	ext = "." + strings.TrimLeft(ext, ".")
	if ext == "." {
		return "", fmt.Errorf("empty extension")
	}
	if strings.ContainsAny(ext, `/\`) {
		return "", fmt.Errorf("extension %q contains a path separator", ext)
	}
	return ext, nil
}

func validateCategoryName(name string) error {
	switch {
	case name == "":
		return errs.Wrap(errs.ErrConfig, "rules", "", "empty category name", nil)
	case name == "." || name == "..", strings.ContainsAny(name, `/\`), filepath.Base(name) != name:
		return errs.Wrap(errs.ErrConfig, "rules", "", fmt.Sprintf("category %q is not a plain directory name", name), nil)
	}
	return nil
}

// Categories returns a copy of the categories in resolution order.
func (r *RuleSet) Categories() []Category {
	out := make([]Category, len(r.categories))
	for i, c := range r.categories {
		out[i] = Category{Name: c.Name, Extensions: append([]string(nil), c.Extensions...)}
	}
	return out
}

// Lookup returns the category owning ext.
func (r *RuleSet) Lookup(ext string) (string, bool) {
	norm, err := NormalizeExt(ext)
	if err != nil {
		return "", false
	}
	cat, ok := r.index[norm]
	return cat, ok
}

package recipes

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrRecipeNotFound is returned when a recipe id is not in the library.
var ErrRecipeNotFound = errors.New("recipes: recipe not found")

// Library holds the recipes loaded from a YAML file.
//
// Load may be called again at any time to pick up file edits; readers
// always see either the previous or the new set, never a partial one.
//
// Thread Safety: All methods are safe for concurrent use.
type Library struct {
	path string

	mu      sync.RWMutex
	recipes map[string]*Recipe
}

// libraryFile is the YAML root: a list of single-key recipe entries.
//
//	recipes:
//	  - perfect_toast_v1:
//	      name: Perfect Toast
//	      stages: [...]
type libraryFile struct {
	Recipes []map[string]*Recipe `yaml:"recipes"`
}

// NewLibrary creates a library backed by the given YAML file.
// Call Load to read it; an empty path yields a permanently empty library.
func NewLibrary(path string) *Library {
	return &Library{
		path:    path,
		recipes: make(map[string]*Recipe),
	}
}

// Load (re)reads the recipe file. On error the previously loaded set is
// kept, so a broken edit never empties a running library.
//
// Returns:
//   - error: If the file cannot be read or parsed, or an entry is malformed
func (l *Library) Load() error {
	if l.path == "" {
		return nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("reading recipe file: %w", err)
	}

	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing recipe file: %w", err)
	}

	loaded := make(map[string]*Recipe, len(file.Recipes))
	for i, entry := range file.Recipes {
		if len(entry) != 1 {
			return fmt.Errorf("recipes[%d]: expected exactly one recipe id key, got %d", i, len(entry))
		}
		for id, recipe := range entry {
			if recipe == nil {
				return fmt.Errorf("recipes[%d]: recipe %q has no body", i, id)
			}
			if _, exists := loaded[id]; exists {
				return fmt.Errorf("recipes[%d]: recipe id %q is duplicate", i, id)
			}
			recipe.ID = id
			if recipe.Name == "" {
				recipe.Name = id
			}
			loaded[id] = recipe
		}
	}

	l.mu.Lock()
	l.recipes = loaded
	l.mu.Unlock()
	return nil
}

// Get returns the recipe with the given id.
//
// Returns:
//   - *Recipe: The recipe
//   - error: ErrRecipeNotFound if the id is unknown
func (l *Library) Get(id string) (*Recipe, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	recipe, ok := l.recipes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRecipeNotFound, id)
	}
	return recipe, nil
}

// List returns summaries of all loaded recipes, sorted by id.
func (l *Library) List() []Info {
	l.mu.RLock()
	defer l.mu.RUnlock()

	infos := make([]Info, 0, len(l.recipes))
	for _, recipe := range l.recipes {
		infos = append(infos, recipe.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Count returns the number of loaded recipes.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.recipes)
}

package surveys

import (
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"github.com/soaringjerry/Pictopercept/internal/services"
)

// Registry is the immutable set of surveys known to the server. It is built
// once at start and shared by every request.
type Registry struct {
	defs map[string]*services.SurveyDefinition
	ids  []string
}

// NewRegistry validates every definition; a single bad one fails the lot.
func NewRegistry(defs ...*services.SurveyDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*services.SurveyDefinition, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.defs[d.ID]; dup {
			return nil, fmt.Errorf("survey %s registered twice", d.ID)
		}
		r.defs[d.ID] = d
		r.ids = append(r.ids, d.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

func (r *Registry) Survey(id string) (*services.SurveyDefinition, bool) {
	d, ok := r.defs[id]
	return d, ok
}

func (r *Registry) IDs() []string { return append([]string(nil), r.ids...) }

// List returns the definitions ordered by id.
func (r *Registry) List() []*services.SurveyDefinition {
	out := make([]*services.SurveyDefinition, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.defs[id])
	}
	return out
}

// Build loads the image datasets under datasetsPath and registers the
// built-in surveys.
func Build(datasetsPath string) (*Registry, error) {
	cfdDir := filepath.Join(datasetsPath, cfdDataset)
	pool, err := services.LoadCFDPool(cfdDir, cfdCategories())
	if err != nil {
		return nil, err
	}
	log.Printf("surveys: found %d neutral images in %s", pool.Size(), cfdDir)
	return NewRegistry(Occupations(pool, cfdDir), Jobs(pool, cfdDir))
}

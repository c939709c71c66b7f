package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ImagePool partitions the available images into disjoint, non-empty groups.
type ImagePool struct {
	groups map[string][]string
	keys   []string
}

// NewImagePool keeps only non-empty groups. A pool without any image is a
// configuration error.
func NewImagePool(groups map[string][]string) (*ImagePool, error) {
	p := &ImagePool{groups: map[string][]string{}}
	for k, imgs := range groups {
		if len(imgs) == 0 {
			continue
		}
		p.groups[k] = append([]string(nil), imgs...)
		p.keys = append(p.keys, k)
	}
	if len(p.keys) == 0 {
		return nil, errors.New("image pool is empty")
	}
	sort.Strings(p.keys)
	return p, nil
}

// Categories lists the non-empty groups in stable order.
func (p *ImagePool) Categories() []string { return append([]string(nil), p.keys...) }

func (p *ImagePool) Group(key string) []string { return p.groups[key] }

func (p *ImagePool) Empty() bool { return p == nil || len(p.keys) == 0 }

func (p *ImagePool) Size() int {
	n := 0
	for _, imgs := range p.groups {
		n += len(imgs)
	}
	return n
}

// LoadCFDPool groups the .jpg files of a Chicago Face Database folder by the
// ethnicity/gender code in their names (CFD-BM-201-077-N.jpg -> "BM").
// Files whose code is not one of categories are ignored.
func LoadCFDPool(dir string, categories []string) (*ImagePool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", dir, err)
	}
	groups := make(map[string][]string, len(categories))
	for _, c := range categories {
		groups[c] = nil
	}
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		parts := strings.Split(e.Name(), "-")
		if len(parts) < 2 {
			continue
		}
		if _, ok := groups[parts[1]]; ok {
			groups[parts[1]] = append(groups[parts[1]], e.Name())
		}
	}
	pool, err := NewImagePool(groups)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", dir, err)
	}
	return pool, nil
}

package ism7

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the converter templates and parameter descriptors of the
// installation. It is read-only after loading and shared by all devices;
// converter instances are created per device from it.
type Catalog struct {
	templates   map[string]ConverterTemplate
	descriptors map[int]*ParameterDescriptor
	order       []int
}

// catalogFile is the YAML layout of a catalog file.
type catalogFile struct {
	Converters []ConverterTemplate `yaml:"converters"`
	Parameters []DescriptorSpec    `yaml:"parameters"`
}

// LoadCatalog reads a parameter catalog from a YAML file.
//
// Parameters:
//   - path: Path to the catalog file
//
// Returns:
//   - *Catalog: Validated catalog
//   - error: If the file cannot be read or any entry is invalid
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog parses catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return NewCatalog(file.Converters, file.Parameters)
}

// NewCatalog validates templates and descriptors and indexes them.
//
// Every error is collected so a broken catalog is reported in one pass.
// A descriptor referring to an unknown CTID is an error; a template with a
// kind the registry does not know is not (its parameters are simply not
// convertible).
func NewCatalog(templates []ConverterTemplate, specs []DescriptorSpec) (*Catalog, error) {
	var errs []string
	cat := &Catalog{
		templates:   make(map[string]ConverterTemplate, len(templates)),
		descriptors: make(map[int]*ParameterDescriptor, len(specs)),
	}

	for i := range templates {
		tmpl := templates[i]
		if err := tmpl.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("converters[%d]: %v", i, err))
			continue
		}
		if _, dup := cat.templates[tmpl.CTID]; dup {
			errs = append(errs, fmt.Sprintf("converters[%d]: ctid %q is duplicate", i, tmpl.CTID))
			continue
		}
		cat.templates[tmpl.CTID] = tmpl
	}

	for i, spec := range specs {
		desc, err := NewDescriptor(spec)
		if err != nil {
			errs = append(errs, fmt.Sprintf("parameters[%d]: %v", i, err))
			continue
		}
		if _, dup := cat.descriptors[desc.PTID]; dup {
			errs = append(errs, fmt.Sprintf("parameters[%d]: ptid %d is duplicate", i, desc.PTID))
			continue
		}
		if _, ok := cat.templates[desc.CTID]; !ok {
			errs = append(errs, fmt.Sprintf("parameters[%d]: ptid %d refers to unknown ctid %q", i, desc.PTID, desc.CTID))
			continue
		}
		cat.descriptors[desc.PTID] = desc
		cat.order = append(cat.order, desc.PTID)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDescriptor, strings.Join(errs, "; "))
	}
	return cat, nil
}

// Descriptor returns the descriptor for a PTID.
func (c *Catalog) Descriptor(ptid int) (*ParameterDescriptor, bool) {
	d, ok := c.descriptors[ptid]
	return d, ok
}

// Template returns the converter template for a CTID.
func (c *Catalog) Template(ctid string) (ConverterTemplate, bool) {
	t, ok := c.templates[ctid]
	return t, ok
}

// Descriptors returns all descriptors in catalog order.
func (c *Catalog) Descriptors() []*ParameterDescriptor {
	out := make([]*ParameterDescriptor, len(c.order))
	for i, ptid := range c.order {
		out[i] = c.descriptors[ptid]
	}
	return out
}

// CTIDs returns the template identifiers in sorted order.
func (c *Catalog) CTIDs() []string {
	ids := make([]string, 0, len(c.templates))
	for id := range c.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NewConverter builds a fresh converter for the descriptor of ptid.
func (c *Catalog) NewConverter(ptid int) (Converter, error) {
	desc, ok := c.descriptors[ptid]
	if !ok {
		return nil, fmt.Errorf("%w: ptid %d not in catalog", ErrUnknownParameter, ptid)
	}
	return NewConverter(c.templates[desc.CTID], desc)
}

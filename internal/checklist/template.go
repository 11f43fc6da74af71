package checklist

import (
	"sort"
	"strings"
)

// DefaultTemplateName is used whenever a profile selects no known variant.
const DefaultTemplateName = "crane"

// ItemDef is one line of a template section.
type ItemDef struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status Status `json:"status,omitempty"`
}

type SectionDef struct {
	Name  string    `json:"name"`
	Items []ItemDef `json:"items"`
}

// Template is the static, read-only definition of an inspection checklist.
type Template struct {
	Name     string       `json:"name"`
	Sections []SectionDef `json:"sections"`
}

// Profile describes the equipment configuration used to pick a template.
// Fields the catalog does not know about are ignored.
type Profile struct {
	HoistType string `json:"hoist_type"`
}

// Catalog maps variant names to templates. A catalog always carries a
// default template so that Generate never blocks an inspection.
type Catalog struct {
	templates   map[string]Template
	defaultName string
}

// NewCatalog builds a catalog. If defaultName is empty or unknown the crane
// template is used as the default, falling back to the built-in one.
func NewCatalog(defaultName string, templates ...Template) Catalog {
	c := Catalog{templates: make(map[string]Template, len(templates)+1)}
	for _, t := range templates {
		c.templates[normalizeKey(t.Name)] = t
	}
	key := normalizeKey(defaultName)
	if _, ok := c.templates[key]; !ok {
		key = DefaultTemplateName
		if _, ok := c.templates[key]; !ok {
			c.templates[key] = craneTemplate()
		}
	}
	c.defaultName = key
	return c
}

// DefaultCatalog returns the built-in templates.
func DefaultCatalog() Catalog {
	return NewCatalog(DefaultTemplateName, BuiltinTemplates()...)
}

// Resolve returns the template selected by the profile and whether the
// profile named a known variant. Unknown variants resolve to the default.
func (c Catalog) Resolve(p Profile) (Template, bool) {
	if c.templates == nil {
		return craneTemplate(), false
	}
	if t, ok := c.templates[normalizeKey(p.HoistType)]; ok {
		return t, true
	}
	return c.templates[c.defaultName], false
}

func (c Catalog) Get(name string) (Template, bool) {
	t, ok := c.templates[normalizeKey(name)]
	return t, ok
}

func (c Catalog) DefaultName() string {
	if c.defaultName == "" {
		return DefaultTemplateName
	}
	return c.defaultName
}

// Names lists the registered variants in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c.templates))
	for name := range c.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// BuiltinTemplates returns fresh copies of the shipped templates.
func BuiltinTemplates() []Template {
	return []Template{craneTemplate(), wireRopeTemplate(), chainTemplate(), bridgeTemplate(), elevatorTemplate()}
}

func craneTemplate() Template {
	return Template{
		Name: "crane",
		Sections: []SectionDef{
			{Name: "Structure", Items: []ItemDef{
				{ID: "s1", Label: "Support Columns"},
				{ID: "s2", Label: "Bolts"},
			}},
			{Name: "Hoist", Items: []ItemDef{
				{ID: "h1", Label: "Hoist Motor & Brakes"},
				{ID: "h2", Label: "Cable or Chain"},
				{ID: "h3", Label: "Bottom Block & Hook"},
				{ID: "h4", Label: "Upper/Lower Limits"},
			}},
			{Name: "Trolley", Items: []ItemDef{
				{ID: "t1", Label: "Running Rails"},
				{ID: "t2", Label: "Festoon Cable"},
				{ID: "t3", Label: "Wheels"},
			}},
		},
	}
}

func wireRopeTemplate() Template {
	return Template{
		Name: "wire-rope",
		Sections: []SectionDef{
			{Name: "Structure", Items: []ItemDef{
				{ID: "s1", Label: "Support Columns"},
				{ID: "s2", Label: "Bolts"},
			}},
			{Name: "Hoist", Items: []ItemDef{
				{ID: "h1", Label: "Hoist Motor & Brakes"},
				{ID: "h2", Label: "Wire Rope"},
				{ID: "h3", Label: "Rope Drum & Sheaves"},
				{ID: "h4", Label: "Bottom Block & Hook"},
				{ID: "h5", Label: "Upper/Lower Limits"},
			}},
			{Name: "Trolley", Items: []ItemDef{
				{ID: "t1", Label: "Running Rails"},
				{ID: "t2", Label: "Festoon Cable"},
				{ID: "t3", Label: "Wheels"},
			}},
		},
	}
}

func chainTemplate() Template {
	return Template{
		Name: "chain",
		Sections: []SectionDef{
			{Name: "Structure", Items: []ItemDef{
				{ID: "s1", Label: "Support Columns"},
				{ID: "s2", Label: "Bolts"},
			}},
			{Name: "Hoist", Items: []ItemDef{
				{ID: "h1", Label: "Hoist Motor & Brakes"},
				{ID: "h2", Label: "Load Chain"},
				{ID: "h3", Label: "Chain Container"},
				{ID: "h4", Label: "Bottom Block & Hook"},
				{ID: "h5", Label: "Upper/Lower Limits"},
			}},
			{Name: "Trolley", Items: []ItemDef{
				{ID: "t1", Label: "Running Rails"},
				{ID: "t2", Label: "Wheels"},
			}},
		},
	}
}

func bridgeTemplate() Template {
	return Template{
		Name: "bridge",
		Sections: []SectionDef{
			{Name: "Structure", Items: []ItemDef{
				{ID: "s1", Label: "Support Columns"},
				{ID: "s2", Label: "Runway Beams"},
				{ID: "s3", Label: "Bolts"},
			}},
			{Name: "Bridge", Items: []ItemDef{
				{ID: "b1", Label: "Bridge Girders"},
				{ID: "b2", Label: "End Trucks"},
				{ID: "b3", Label: "Bridge Drive Motors"},
				{ID: "b4", Label: "Runway Conductors"},
			}},
			{Name: "Hoist", Items: []ItemDef{
				{ID: "h1", Label: "Hoist Motor & Brakes"},
				{ID: "h2", Label: "Cable or Chain"},
				{ID: "h3", Label: "Bottom Block & Hook"},
				{ID: "h4", Label: "Upper/Lower Limits"},
			}},
			{Name: "Trolley", Items: []ItemDef{
				{ID: "t1", Label: "Trolley Frame"},
				{ID: "t2", Label: "Running Rails"},
				{ID: "t3", Label: "Festoon Cable"},
				{ID: "t4", Label: "Wheels"},
			}},
		},
	}
}

func elevatorTemplate() Template {
	return Template{
		Name: "elevator",
		Sections: []SectionDef{
			{Name: "Machine Room", Items: []ItemDef{
				{ID: "m1", Label: "Hoist Machine & Brake"},
				{ID: "m2", Label: "Governor"},
				{ID: "m3", Label: "Controller"},
			}},
			{Name: "Car", Items: []ItemDef{
				{ID: "c1", Label: "Door Operation"},
				{ID: "c2", Label: "Emergency Phone"},
				{ID: "c3", Label: "Car Lighting"},
			}},
			{Name: "Hoistway", Items: []ItemDef{
				{ID: "w1", Label: "Guide Rails"},
				{ID: "w2", Label: "Suspension Ropes"},
				{ID: "w3", Label: "Pit Buffers"},
			}},
		},
	}
}

package checklist

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrItemNotFound    = errors.New("checklist item not found")
	ErrSectionNotFound = errors.New("checklist section not found")
)

// Item is a single inspected component.
type Item struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Status Status `json:"status"`
	Notes  string `json:"notes"`
	// IsMonitor is unset until the inspector answers the monitor prompt.
	IsMonitor *bool `json:"is_monitor,omitempty"`
}

// Monitored reports whether the monitor flag is explicitly set to true.
func (i Item) Monitored() bool {
	return i.IsMonitor != nil && *i.IsMonitor
}

// DisplayStatus is the text shown next to the item; a monitored OK item reads MONITORING.
func (i Item) DisplayStatus() string {
	if i.Status == StatusOK && i.Monitored() {
		return "MONITORING"
	}
	return string(i.Status)
}

type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Document is the live checklist of one inspection session.
// Operations never modify their input; they return an updated copy.
type Document struct {
	Template string    `json:"template"`
	Sections []Section `json:"sections"`
}

// Generate builds a fresh document from the template the profile selects.
// Unknown variants fall back to the catalog default.
func Generate(c Catalog, p Profile) Document {
	t, _ := c.Resolve(p)
	return FromTemplate(t)
}

// FromTemplate instantiates a template. Items start OK unless the template
// overrides the status.
func FromTemplate(t Template) Document {
	doc := Document{Template: t.Name, Sections: make([]Section, 0, len(t.Sections))}
	for _, sd := range t.Sections {
		sec := Section{Name: sd.Name, Items: make([]Item, 0, len(sd.Items))}
		for _, def := range sd.Items {
			status := def.Status
			if !status.Valid() {
				status = StatusOK
			}
			sec.Items = append(sec.Items, Item{ID: def.ID, Label: def.Label, Status: status})
		}
		doc.Sections = append(doc.Sections, sec)
	}
	return doc
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := Document{Template: d.Template, Sections: make([]Section, len(d.Sections))}
	for si, sec := range d.Sections {
		items := make([]Item, len(sec.Items))
		for ii, it := range sec.Items {
			if it.IsMonitor != nil {
				v := *it.IsMonitor
				it.IsMonitor = &v
			}
			items[ii] = it
		}
		out.Sections[si] = Section{Name: sec.Name, Items: items}
	}
	return out
}

// Item looks up an item by id.
func (d Document) Item(id string) (Item, string, bool) {
	si, ii, ok := d.locate(id)
	if !ok {
		return Item{}, "", false
	}
	return d.Sections[si].Items[ii], d.Sections[si].Name, true
}

func (d Document) locate(id string) (int, int, bool) {
	for si, sec := range d.Sections {
		for ii, it := range sec.Items {
			if it.ID == id {
				return si, ii, true
			}
		}
	}
	return 0, 0, false
}

func (d Document) sectionIndex(name string) (int, bool) {
	for si, sec := range d.Sections {
		if sec.Name == name {
			return si, true
		}
	}
	for si, sec := range d.Sections {
		if strings.EqualFold(sec.Name, name) {
			return si, true
		}
	}
	return 0, false
}

// Validate checks the document invariants: unique section names, unique item
// ids and legal statuses.
func (d Document) Validate() error {
	sections := map[string]struct{}{}
	ids := map[string]struct{}{}
	for _, sec := range d.Sections {
		if strings.TrimSpace(sec.Name) == "" {
			return errors.New("section name required")
		}
		if _, dup := sections[sec.Name]; dup {
			return fmt.Errorf("duplicate section %q", sec.Name)
		}
		sections[sec.Name] = struct{}{}
		for _, it := range sec.Items {
			if strings.TrimSpace(it.ID) == "" {
				return fmt.Errorf("section %q has item without id", sec.Name)
			}
			if _, dup := ids[it.ID]; dup {
				return fmt.Errorf("duplicate item id %q", it.ID)
			}
			ids[it.ID] = struct{}{}
			if !it.Status.Valid() {
				return fmt.Errorf("item %s has invalid status %q", it.ID, it.Status)
			}
		}
	}
	return nil
}

// Validate checks a template the same way a generated document is checked.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("template name required")
	}
	if len(t.Sections) == 0 {
		return fmt.Errorf("template %s has no sections", t.Name)
	}
	if err := FromTemplate(t).Validate(); err != nil {
		return fmt.Errorf("template %s: %w", t.Name, err)
	}
	return nil
}

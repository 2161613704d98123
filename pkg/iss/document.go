package iss

import (
	"encoding/json"
	"sort"
)

// Document is one decoded response body: a set of named tabular sections.
type Document struct {
	sections map[string]json.RawMessage
}

// ParseDocument decodes a raw response body into its named sections.
func ParseDocument(body []byte) (*Document, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(body, &sections); err != nil {
		return nil, malformedf("", "decode document: %v", err)
	}
	if len(sections) == 0 {
		return nil, malformedf("", "empty document")
	}
	return &Document{sections: sections}, nil
}

// Has reports whether the response carried the named section.
func (d *Document) Has(section string) bool {
	_, ok := d.sections[section]
	return ok
}

// Sections lists the section names present in the response, sorted.
func (d *Document) Sections() []string {
	out := make([]string, 0, len(d.sections))
	for name := range d.sections {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Table decodes the named section into a Table.
func (d *Document) Table(section string) (*Table, error) {
	raw, ok := d.sections[section]
	if !ok {
		return nil, malformedf(section, "section missing")
	}
	return decodeTable(section, raw)
}

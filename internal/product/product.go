// Package product defines the watched product descriptors.
package product

import "strings"

// Key identifies a product. Two descriptors with the same URL are the same
// product regardless of name.
type Key string

// Descriptor is an immutable (name, url) pair built once from configuration.
type Descriptor struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (d Descriptor) Key() Key { return Key(strings.TrimSpace(d.URL)) }

// DisplayName falls back to the URL when no name is configured.
func (d Descriptor) DisplayName() string {
	if n := strings.TrimSpace(d.Name); n != "" {
		return n
	}
	return d.URL
}

// Dedupe returns ps in order with entries sharing a key removed (first wins),
// plus the dropped duplicates. Entries without a URL are skipped.
func Dedupe(ps []Descriptor) (out []Descriptor, dropped []Descriptor) {
	seen := make(map[Key]struct{}, len(ps))
	out = make([]Descriptor, 0, len(ps))
	for _, p := range ps {
		k := p.Key()
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			dropped = append(dropped, p)
			continue
		}
		seen[k] = struct{}{}
		p.URL = string(k)
		p.Name = strings.TrimSpace(p.Name)
		out = append(out, p)
	}
	return out, dropped
}

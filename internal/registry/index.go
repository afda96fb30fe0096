// Package registry resolves the raw customer names typed in order lines to
// known customer records.
package registry

import (
	"strings"

	"orderdesk/internal"
)

type Index struct {
	ByID       map[int]internal.Customer
	ByName     map[string][]internal.Customer
	ByNickname map[string][]internal.Customer
}

func BuildIndex(customers []internal.Customer) *Index {
	idx := &Index{
		ByID:       map[int]internal.Customer{},
		ByName:     map[string][]internal.Customer{},
		ByNickname: map[string][]internal.Customer{},
	}
	for _, c := range customers {
		idx.Add(c)
	}
	return idx
}

func (i *Index) Add(c internal.Customer) {
	i.ByID[c.ID] = c
	if name := key(c.Name); name != "" {
		i.ByName[name] = append(i.ByName[name], c)
	}
	if c.Nickname != nil {
		if nick := key(*c.Nickname); nick != "" {
			i.ByNickname[nick] = append(i.ByNickname[nick], c)
		}
	}
}

// Resolve finds the customer for a typed name. A name match beats a
// nickname match; among equals the first indexed customer wins.
func (i *Index) Resolve(name string) (internal.Customer, bool) {
	k := key(name)
	if k == "" {
		return internal.Customer{}, false
	}
	if hits := i.ByName[k]; len(hits) > 0 {
		return hits[0], true
	}
	if hits := i.ByNickname[k]; len(hits) > 0 {
		return hits[0], true
	}
	return internal.Customer{}, false
}

func key(s string) string {
	return strings.TrimSpace(s)
}

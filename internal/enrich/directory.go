// Package enrich attaches list and category metadata to items based on the
// identities of their author, mentioned users and referenced user.
package enrich

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/bakkerme/curator-streams/internal/core"
)

// Snapshot is an immutable id→lists and id→category mapping. Never mutate a
// snapshot after handing it to a Directory; build a new one and Swap it in.
type Snapshot struct {
	Lists      map[string][]string      `yaml:"lists"`
	Categories map[string]core.Category `yaml:"categories"`
}

// Apply enriches item in place. The item's lists become the sorted union of the
// lists of its author, its mentions and its referenced user; its category is the
// author's category. Missing matches leave the fields untouched.
func (s *Snapshot) Apply(item *core.Item) {
	if s == nil || item == nil {
		return
	}
	if len(s.Lists) > 0 {
		if lists := s.listsFor(item); len(lists) > 0 {
			item.Lists = lists
		}
	}
	if item.UserID != "" {
		if category, ok := s.Categories[item.UserID]; ok && category != "" {
			item.Category = category
		}
	}
}

func (s *Snapshot) listsFor(item *core.Item) []string {
	seen := map[string]bool{}
	add := func(id string) {
		if id == "" {
			return
		}
		for _, list := range s.Lists[id] {
			seen[list] = true
		}
	}
	add(item.UserID)
	for _, mention := range item.Mentions {
		add(mention)
	}
	add(item.ReferencedUserID)

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for list := range seen {
		out = append(out, list)
	}
	sort.Strings(out)
	return out
}

// Counts returns the number of users and distinct lists in the snapshot.
func (s *Snapshot) Counts() (users int, lists int) {
	if s == nil {
		return 0, 0
	}
	distinct := map[string]bool{}
	for _, ls := range s.Lists {
		for _, l := range ls {
			distinct[l] = true
		}
	}
	return len(s.Lists), len(distinct)
}

// Directory publishes the current Snapshot. Readers always see a whole snapshot;
// replacing it is a single atomic swap.
type Directory struct {
	current atomic.Pointer[Snapshot]
}

func NewDirectory(initial *Snapshot) *Directory {
	d := &Directory{}
	if initial != nil {
		d.current.Store(initial)
	}
	return d
}

// Snapshot returns the current snapshot, or nil when none has been loaded.
func (d *Directory) Snapshot() *Snapshot {
	if d == nil {
		return nil
	}
	return d.current.Load()
}

// Swap installs next and returns the previous snapshot.
func (d *Directory) Swap(next *Snapshot) *Snapshot {
	return d.current.Swap(next)
}

// LoadFile reads a snapshot from a YAML document of the form
//
//	lists:
//	  "user-id": ["journalists", "politicians"]
//	categories:
//	  "user-id": "media"
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var snapshot Snapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	return &snapshot, nil
}

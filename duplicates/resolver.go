// Package duplicates finds people that represent the same real person and
// consolidates them.
package duplicates

import (
	"context"
	"errors"
	"sort"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/mediasysintegrity/database"
	"github.com/camden-git/mediasysintegrity/models"
	"github.com/camden-git/mediasysintegrity/policy"
	"github.com/camden-git/mediasysintegrity/realtime"
	"github.com/camden-git/mediasysintegrity/repository"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	ErrInvalidMerge     = errors.New("invalid merge request")
)

// DefaultFields is the match priority used when a resolver has none set. An
// identity grouped on an earlier field is not considered for later ones.
var DefaultFields = []string{"email", "handle", "profile_url", "website_url", "primary_name"}

// mergeableFields are coalesced into the kept identity on merge.
var mergeableFields = []string{"email", "handle", "profile_url", "website_url", "avatar_path", "bio"}

// Member is one identity inside a duplicate group.
type Member struct {
	ID        uint   `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	LinkCount int64  `json:"link_count" yaml:"link_count"`
	CreatedAt int64  `json:"created_at" yaml:"created_at"`
}

// Group is a set of identities sharing one normalized field value.
type Group struct {
	MatchField      string   `json:"match_field" yaml:"match_field"`
	MatchValue      string   `json:"match_value" yaml:"match_value"`
	Members         []Member `json:"members" yaml:"members"`
	SuggestedKeepID uint     `json:"suggested_keep_id" yaml:"suggested_keep_id"`
}

// Resolver groups, merges and deletes identities.
type Resolver struct {
	DB      *gorm.DB
	Scanner *database.Scanner
	Writer  *database.Writer
	People  repository.PersonRepositoryInterface
	Policy  policy.Source
	Events  realtime.Publisher
	Fields  []string
}

// NewResolver creates a resolver using DefaultFields. A nil publisher
// discards events.
func NewResolver(db *gorm.DB, scanner *database.Scanner, writer *database.Writer, src policy.Source, events realtime.Publisher) *Resolver {
	if events == nil {
		events = realtime.Discard{}
	}
	return &Resolver{
		DB:      db,
		Scanner: scanner,
		Writer:  writer,
		People:  repository.NewPersonRepository(db),
		Policy:  src,
		Events:  events,
		Fields:  append([]string(nil), DefaultFields...),
	}
}

func (r *Resolver) fields() []string {
	if len(r.Fields) == 0 {
		return DefaultFields
	}
	return r.Fields
}

// FindGroups partitions identities into duplicate groups. Groups are ordered
// by field priority, then by natural order of the matched value.
func (r *Resolver) FindGroups(ctx context.Context) ([]Group, error) {
	people, err := database.ScanAll[models.Person](ctx, r.Scanner, nil)
	if err != nil {
		return nil, err
	}

	claimed := make(map[uint]struct{})
	var groups []Group
	for _, field := range r.fields() {
		buckets := make(map[string][]models.Person)
		for _, p := range people {
			if _, ok := claimed[p.ID]; ok {
				continue
			}
			key := Normalize(field, p.StringField(field))
			if key == "" {
				continue
			}
			buckets[key] = append(buckets[key], p)
		}

		keys := make([]string, 0, len(buckets))
		for key, members := range buckets {
			if len(members) >= 2 {
				keys = append(keys, key)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return natsort.Compare(keys[i], keys[j]) })

		for _, key := range keys {
			g := Group{MatchField: field, MatchValue: key}
			for _, p := range buckets[key] {
				claimed[p.ID] = struct{}{}
				g.Members = append(g.Members, Member{ID: p.ID, Name: p.PrimaryName, CreatedAt: p.CreatedAt})
			}
			groups = append(groups, g)
		}
	}

	if err := r.annotate(ctx, groups); err != nil {
		return nil, err
	}
	return groups, nil
}

// annotate fills in link counts and the suggested keep identity: the member
// with the most links, the oldest one on a tie.
func (r *Resolver) annotate(ctx context.Context, groups []Group) error {
	var ids []uint
	for _, g := range groups {
		for _, m := range g.Members {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	counts, err := r.People.LinkCounts(ctx, ids)
	if err != nil {
		return err
	}

	for gi := range groups {
		members := groups[gi].Members
		for mi := range members {
			members[mi].LinkCount = counts[members[mi].ID]
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		best := members[0]
		for _, m := range members[1:] {
			if m.LinkCount > best.LinkCount ||
				(m.LinkCount == best.LinkCount && m.CreatedAt < best.CreatedAt) {
				best = m
			}
		}
		groups[gi].SuggestedKeepID = best.ID
	}
	return nil
}

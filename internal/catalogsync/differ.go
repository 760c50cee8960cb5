package catalogsync

import (
	"sort"

	"github.com/slipstream/catalogsync/internal/catalog"
)

// MembershipDiff compares a fetched catalog against a collection's current members.
type MembershipDiff struct {
	// TotalCatalogItems counts every fetched item, including those without an id.
	TotalCatalogItems int      `json:"totalCatalogItems"`
	ExistingIDs       []string `json:"existingIds"`
	MissingIDs        []string `json:"missingIds"`
	RemovedIDs        []string `json:"removedIds"`
	Unidentified      int      `json:"unidentified"`
}

// Diff computes the membership diff between catalog items and the external ids
// of a collection's current members. Ids are compared case-insensitively.
// Existing and missing ids keep catalog order and are deduplicated; removed ids
// are sorted.
func Diff(items []catalog.Item, current []string) MembershipDiff {
	members := make(map[string]struct{}, len(current))
	for _, id := range current {
		if id = catalog.NormalizeExternalID(id); id != "" {
			members[id] = struct{}{}
		}
	}

	diff := MembershipDiff{
		TotalCatalogItems: len(items),
		ExistingIDs:       []string{},
		MissingIDs:        []string{},
		RemovedIDs:        []string{},
	}

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		id := item.ExternalID()
		if id == "" {
			diff.Unidentified++
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if _, ok := members[id]; ok {
			diff.ExistingIDs = append(diff.ExistingIDs, id)
		} else {
			diff.MissingIDs = append(diff.MissingIDs, id)
		}
	}

	for id := range members {
		if _, ok := seen[id]; !ok {
			diff.RemovedIDs = append(diff.RemovedIDs, id)
		}
	}
	sort.Strings(diff.RemovedIDs)

	return diff
}

// MissingItems returns the first catalog item for every missing id, in catalog order.
func MissingItems(items []catalog.Item, diff MembershipDiff) []catalog.Item {
	missing := make(map[string]struct{}, len(diff.MissingIDs))
	for _, id := range diff.MissingIDs {
		missing[catalog.NormalizeExternalID(id)] = struct{}{}
	}

	out := make([]catalog.Item, 0, len(diff.MissingIDs))
	for _, item := range items {
		id := item.ExternalID()
		if _, ok := missing[id]; !ok {
			continue
		}
		delete(missing, id)
		out = append(out, item)
	}
	return out
}

// KnownSet returns the lower-cased set of ids, for use as the orchestrator's
// duplicate filter.
func KnownSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = catalog.NormalizeExternalID(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

package reconcile

import (
	"monbot/internal/entity"
)

// keyed is any mirrored entity with an external id and a soft-disable flag.
type keyed interface {
	ExternalID() int64
	IsDisabled() bool
}

// Diff is the minimal mutation set bringing the mirror in line with one
// snapshot: insert New, clear disabled_at for Enable, set it for Disable.
type Diff[E keyed] struct {
	New     []E
	Enable  []int64
	Disable []int64
}

func (d Diff[E]) Empty() bool {
	return len(d.New) == 0 && len(d.Enable) == 0 && len(d.Disable) == 0
}

// diffByID computes the three sets from the actual snapshot and the saved
// mirror rows:
//
//	new     = actual − saved            (insert, using the actual record)
//	enable  = saved_disabled ∩ actual   (re-appeared)
//	disable = saved − saved_disabled − actual
//
// Already-disabled entities still absent from actual are left untouched, so
// a second run over an unchanged snapshot yields an empty diff.
func diffByID[E keyed](actual, saved []E) Diff[E] {
	savedIDs := make(map[int64]bool, len(saved))
	disabledIDs := make(map[int64]bool)
	for _, e := range saved {
		id := e.ExternalID()
		savedIDs[id] = true
		if e.IsDisabled() {
			disabledIDs[id] = true
		}
	}

	actualIDs := make(map[int64]bool, len(actual))
	var d Diff[E]
	for _, e := range actual {
		id := e.ExternalID()
		actualIDs[id] = true
		if !savedIDs[id] {
			d.New = append(d.New, e)
		} else if disabledIDs[id] {
			d.Enable = append(d.Enable, id)
		}
	}
	for id := range savedIDs {
		if !disabledIDs[id] && !actualIDs[id] {
			d.Disable = append(d.Disable, id)
		}
	}
	return d
}

// diffMemberships returns hosts newly observed in a group where the mirror
// has no record of them under that group. The set difference is scoped per
// group key: a host already known under one group is still "new" under
// another. Hosts have no enable/disable path (insert-only; see Engine docs).
func diffMemberships(actual, saved map[int64][]entity.Host) []entity.HostMembership {
	savedIDs := make(map[int64]map[int64]bool, len(saved))
	for groupID, hosts := range saved {
		set := make(map[int64]bool, len(hosts))
		for _, h := range hosts {
			set[h.ID] = true
		}
		savedIDs[groupID] = set
	}

	var newMemberships []entity.HostMembership
	for groupID, hosts := range actual {
		known := savedIDs[groupID]
		seen := make(map[int64]bool, len(hosts))
		for _, h := range hosts {
			if known[h.ID] || seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			newMemberships = append(newMemberships, entity.HostMembership{HostGroupID: groupID, Host: h})
		}
	}
	return newMemberships
}

// Package grouping assigns canvas cards to the group regions that enclose them.
package grouping

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/starford/canvasarchive/internal/models"
)

// Uncategorized is the group name used for cards outside every region.
const Uncategorized = "Uncategorized"

// Resolve maps every candidate to the name of the innermost group that
// contains it. When several groups contain a card the one with the smallest
// area wins; equal areas go to the group listed first. Cards outside every
// group land under Uncategorized.
//
// Keys appear in the order a group first receives a card, and cards within
// a group keep their input order.
func Resolve(candidates, groups []models.Node) *orderedmap.OrderedMap[string, []models.Node] {
	out := orderedmap.New[string, []models.Node]()
	for _, c := range candidates {
		name := owner(c, groups)
		cards, _ := out.Get(name)
		out.Set(name, append(cards, c))
	}
	return out
}

// owner returns the resolved group name for a single card.
func owner(card models.Node, groups []models.Node) string {
	best := -1
	for i, g := range groups {
		if !g.Contains(card) {
			continue
		}
		// Strict comparison keeps the earliest group on ties.
		if best < 0 || g.Area() < groups[best].Area() {
			best = i
		}
	}
	if best < 0 {
		return Uncategorized
	}
	return groups[best].Name()
}

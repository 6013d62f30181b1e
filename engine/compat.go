/*
compat.go - UN hazard compatibility group matrix

PURPOSE:
  Decides whether a product's compatibility group may share a magazine with
  the products already stored there. The matrix lists, for each group, the
  set of groups it may coexist with.

RULES ENCODED:
  - Group A (primary explosives) must always be stored alone.
  - Group S may be stored with anything except A.
  - C, D, E and G are mutually compatible.
  - F, H, J, K, L and N may only share with their own group (and S).
  - An empty magazine is compatible with every group.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/warp/magtrack/ledger"
)

// Matrix maps each compatibility group to the groups it may share a
// magazine with. Absence from the map means incompatible.
var Matrix = map[ledger.CompatGroup][]ledger.CompatGroup{
	ledger.GroupA: {},
	ledger.GroupB: {ledger.GroupB, ledger.GroupS},
	ledger.GroupC: {ledger.GroupC, ledger.GroupD, ledger.GroupE, ledger.GroupG, ledger.GroupS},
	ledger.GroupD: {ledger.GroupC, ledger.GroupD, ledger.GroupE, ledger.GroupG, ledger.GroupS},
	ledger.GroupE: {ledger.GroupC, ledger.GroupD, ledger.GroupE, ledger.GroupG, ledger.GroupS},
	ledger.GroupF: {ledger.GroupF, ledger.GroupS},
	ledger.GroupG: {ledger.GroupC, ledger.GroupD, ledger.GroupE, ledger.GroupG, ledger.GroupS},
	ledger.GroupH: {ledger.GroupH, ledger.GroupS},
	ledger.GroupJ: {ledger.GroupJ, ledger.GroupS},
	ledger.GroupK: {ledger.GroupK, ledger.GroupS},
	ledger.GroupL: {ledger.GroupL, ledger.GroupS},
	ledger.GroupN: {ledger.GroupN, ledger.GroupS},
	ledger.GroupS: {
		ledger.GroupB, ledger.GroupC, ledger.GroupD, ledger.GroupE, ledger.GroupF,
		ledger.GroupG, ledger.GroupH, ledger.GroupJ, ledger.GroupK, ledger.GroupL,
		ledger.GroupN, ledger.GroupS,
	},
}

// Compatible reports whether group g may share a magazine with group h.
func Compatible(g, h ledger.CompatGroup) bool {
	for _, allowed := range Matrix[g] {
		if allowed == h {
			return true
		}
	}
	return false
}

// CheckCompatibility verifies that group g may join the given occupants.
// Occupants are the products currently held in the magazine; an empty
// magazine accepts any group. Conflicts are rendered "Name (Group X)".
func CheckCompatibility(g ledger.CompatGroup, occupants []ledger.Product) (bool, []string) {
	var conflicts []string
	for _, p := range occupants {
		if !Compatible(g, p.Group) {
			conflicts = append(conflicts, fmt.Sprintf("%s (Group %s)", p.Name, p.Group))
		}
	}
	return len(conflicts) == 0, conflicts
}

// ValidateCompatibility previews whether a product may be stored in a
// magazine given its current occupants. Returns the product's group so
// callers can word the refusal.
func (e *Engine) ValidateCompatibility(ctx context.Context, m ledger.MagazineID, p ledger.ProductID) (bool, []string, ledger.CompatGroup, error) {
	if _, err := e.magazine(ctx, m); err != nil {
		return false, nil, "", err
	}
	prod, err := e.product(ctx, p)
	if err != nil {
		return false, nil, "", err
	}
	occupants, err := e.occupants(ctx, m)
	if err != nil {
		return false, nil, "", err
	}
	ok, conflicts := CheckCompatibility(prod.Group, occupants)
	return ok, conflicts, prod.Group, nil
}

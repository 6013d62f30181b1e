package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/magtrack/engine"
	"github.com/warp/magtrack/ledger"
)

// =============================================================================
// MATRIX TESTS
// =============================================================================

func TestCompatible_MatrixRules(t *testing.T) {
	// GIVEN: The UN compatibility group matrix
	// WHEN: Checking representative pairs
	// THEN: Each answer matches the storage rules

	cases := []struct {
		name string
		g, h ledger.CompatGroup
		want bool
	}{
		{"A is stored alone, even from itself", ledger.GroupA, ledger.GroupA, false},
		{"A rejects S", ledger.GroupA, ledger.GroupS, false},
		{"B accepts B", ledger.GroupB, ledger.GroupB, true},
		{"B accepts S", ledger.GroupB, ledger.GroupS, true},
		{"B rejects D", ledger.GroupB, ledger.GroupD, false},
		{"C accepts D", ledger.GroupC, ledger.GroupD, true},
		{"D accepts E", ledger.GroupD, ledger.GroupE, true},
		{"D accepts G", ledger.GroupD, ledger.GroupG, true},
		{"D rejects B", ledger.GroupD, ledger.GroupB, false},
		{"F accepts only F and S", ledger.GroupF, ledger.GroupF, true},
		{"F rejects C", ledger.GroupF, ledger.GroupC, false},
		{"L accepts L", ledger.GroupL, ledger.GroupL, true},
		{"L rejects N", ledger.GroupL, ledger.GroupN, false},
		{"S accepts everything but A", ledger.GroupS, ledger.GroupB, true},
		{"S rejects A", ledger.GroupS, ledger.GroupA, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, engine.Compatible(tc.g, tc.h))
		})
	}
}

func TestCheckCompatibility_EmptyMagazine_AlwaysCompatible(t *testing.T) {
	// GIVEN: A magazine with no occupants
	// WHEN: Checking any group against it, even Group A
	// THEN: Compatible with no conflicts

	ok, conflicts := engine.CheckCompatibility(ledger.GroupA, nil)
	assert.True(t, ok)
	assert.Empty(t, conflicts)
}

func TestCheckCompatibility_ConflictsRenderedWithGroup(t *testing.T) {
	// GIVEN: A magazine holding a Group D and a Group S product
	// WHEN: Checking Group B against the occupants
	// THEN: Only the Group D product conflicts, rendered "Name (Group D)"

	occupants := []ledger.Product{
		{Name: "TNT Block", Group: ledger.GroupD},
		{Name: "Safety Fuse", Group: ledger.GroupS},
	}

	ok, conflicts := engine.CheckCompatibility(ledger.GroupB, occupants)
	assert.False(t, ok)
	assert.Equal(t, []string{"TNT Block (Group D)"}, conflicts)
}

func TestCheckCompatibility_GroupA_ConflictsWithItself(t *testing.T) {
	// GIVEN: A magazine already holding a Group A product
	// WHEN: Checking another Group A product against it
	// THEN: Rejected; primary explosives never share, not even with their own group

	occupants := []ledger.Product{{Name: "Lead Azide", Group: ledger.GroupA}}

	ok, conflicts := engine.CheckCompatibility(ledger.GroupA, occupants)
	assert.False(t, ok)
	assert.Equal(t, []string{"Lead Azide (Group A)"}, conflicts)
}

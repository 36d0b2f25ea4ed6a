package incentive_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
)

func TestResolveSlab_BoundaryBelongsToSlabThatStartsThere(t *testing.T) {
	slabs := standardSlabs()

	cases := []struct {
		achievement string
		want        string
	}{
		{"0", "s0"},
		{"79.9999", "s0"},
		{"80", "s1"},
		{"99.99", "s1"},
		{"100", "s2"},
		{"120", "s2"},
		{"100000", "s2"},
	}
	for _, tc := range cases {
		t.Run(tc.achievement, func(t *testing.T) {
			s, err := incentive.ResolveSlab(slabs, incentive.Percentage{Value: dec(tc.achievement)})
			require.NoError(t, err)
			assert.Equal(t, tc.want, s.ID)
		})
	}
}

func TestResolveSlab_OrderOfInputDoesNotMatter(t *testing.T) {
	slabs := standardSlabs()
	reversed := []incentive.Slab{slabs[2], slabs[0], slabs[1]}

	s, err := incentive.ResolveSlab(reversed, incentive.Pct(85))
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID)
}

func TestResolveSlab_GapIsReportedNotDefaulted(t *testing.T) {
	// GIVEN: A table that stops at 100% with no open-ended slab
	slabs := standardSlabs()[:2]

	// WHEN: Resolving 120%
	_, err := incentive.ResolveSlab(slabs, incentive.Pct(120))

	// THEN: NoApplicableSlab, not the highest slab
	require.Error(t, err)
	assert.True(t, errors.Is(err, incentive.ErrNoApplicableSlab))
	var nse *incentive.NoApplicableSlabError
	require.True(t, errors.As(err, &nse))
	assert.Equal(t, "120%", nse.Achievement.String())
}

func TestValidateSlabs(t *testing.T) {
	require.NoError(t, incentive.ValidateSlabs(standardSlabs()))

	overlapping := standardSlabs()
	overlapping[0].UpperBoundPct = decPtr("90")

	gap := standardSlabs()
	gap[1].LowerBoundPct = dec("85")

	notFromZero := standardSlabs()
	notFromZero[0].LowerBoundPct = dec("10")

	closedLast := standardSlabs()
	closedLast[2].UpperBoundPct = decPtr("200")

	openMiddle := standardSlabs()
	openMiddle[1].UpperBoundPct = nil

	negativeRate := standardSlabs()
	negativeRate[1].PayoutRate = dec("-1")

	for name, slabs := range map[string][]incentive.Slab{
		"empty":         nil,
		"overlapping":   overlapping,
		"gap":           gap,
		"not from zero": notFromZero,
		"closed last":   closedLast,
		"open middle":   openMiddle,
		"negative rate": negativeRate,
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, incentive.ValidateSlabs(slabs), incentive.ErrValidation)
		})
	}
}

package incentive

// ResolveSlab returns the slab whose [lower, upper) interval contains achievement.
//
// Bounds are half-open, so a value sitting exactly on a boundary belongs to the
// slab that starts there. A table that does not cover the value is a plan
// defect and is reported as NoApplicableSlabError rather than defaulted.
func ResolveSlab(slabs []Slab, achievement Percentage) (Slab, error) {
	if achievement.Value.IsNegative() {
		return Slab{}, invalid("achievement", "must not be negative, got %s", achievement)
	}
	for _, s := range sortedSlabs(slabs) {
		if s.contains(achievement.Value) {
			return s, nil
		}
	}
	return Slab{}, &NoApplicableSlabError{Achievement: achievement}
}

package records

// AgeGroup is the clinical age banding attached to patient nodes.
type AgeGroup string

const (
	AgeGroupChild      AgeGroup = "Child"
	AgeGroupYoungAdult AgeGroup = "Young Adult"
	AgeGroupAdult      AgeGroup = "Adult"
	AgeGroupSenior     AgeGroup = "Senior"
	AgeGroupUnknown    AgeGroup = "Unknown"
)

// AgeBoundaries holds the upper-exclusive cutoffs between bands. The
// defaults are the conventional 18/35/65 split; they are configuration,
// not clinically validated constants.
type AgeBoundaries struct {
	Child      int // below this: Child
	YoungAdult int // below this: Young Adult
	Adult      int // below this: Adult, at or above: Senior
}

// DefaultAgeBoundaries returns the conventional banding.
func DefaultAgeBoundaries() AgeBoundaries {
	return AgeBoundaries{Child: 18, YoungAdult: 35, Adult: 65}
}

// Slice returns the cutoffs in ascending order, for validation.
func (b AgeBoundaries) Slice() []int {
	return []int{b.Child, b.YoungAdult, b.Adult}
}

// Classify assigns an age to its band. A nil age is Unknown.
func (b AgeBoundaries) Classify(age *int) AgeGroup {
	if age == nil {
		return AgeGroupUnknown
	}
	switch {
	case *age < b.Child:
		return AgeGroupChild
	case *age < b.YoungAdult:
		return AgeGroupYoungAdult
	case *age < b.Adult:
		return AgeGroupAdult
	default:
		return AgeGroupSenior
	}
}

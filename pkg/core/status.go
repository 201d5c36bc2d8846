package core

// Outcome is the result of one attempt recorded in a fallback trail.
type Outcome int

const (
	OutcomeSuccess        Outcome = iota // Unique, safe candidate found
	OutcomeNoMatch                       // Nothing matched the variant's selectors
	OutcomeAmbiguous                     // Several candidates, uniqueness not established
	OutcomeBelowThreshold                // Best candidate under min confidence
	OutcomeUnsafe                        // Best candidate failed the safety check
	OutcomeCheckFailed                   // Light checks rejected the candidate
	OutcomeError                         // Variant could not be evaluated (bad hint)
	OutcomeBudgetExceeded                // Time budget spent
)

// String returns the string representation of Outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeAmbiguous:
		return "ambiguous"
	case OutcomeBelowThreshold:
		return "below_threshold"
	case OutcomeUnsafe:
		return "unsafe"
	case OutcomeCheckFailed:
		return "check_failed"
	case OutcomeError:
		return "error"
	case OutcomeBudgetExceeded:
		return "budget_exceeded"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome by name in JSON output.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// IsSuccess returns true for OutcomeSuccess.
func (o Outcome) IsSuccess() bool {
	return o == OutcomeSuccess
}

// ErrorKind maps a failed outcome to the error kind surfaced when it ends a chain.
func (o Outcome) ErrorKind() ErrorKind {
	switch o {
	case OutcomeSuccess:
		return KindNone
	case OutcomeAmbiguous:
		return KindAmbiguousMatch
	case OutcomeUnsafe:
		return KindUnsafeTarget
	default:
		return KindNoCandidateAboveThreshold
	}
}

// OutcomeFor maps a resolution error to the trail outcome it represents.
func OutcomeFor(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	switch KindOf(err) {
	case KindAmbiguousMatch:
		return OutcomeAmbiguous
	case KindUnsafeTarget, KindInvalidBounds:
		return OutcomeUnsafe
	case KindNoCandidateAboveThreshold:
		return OutcomeBelowThreshold
	default:
		return OutcomeError
	}
}

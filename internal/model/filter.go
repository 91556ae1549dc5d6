package model

// NumericRange is an inclusive range where either bound may be open.
type NumericRange struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Contains reports whether v lies within the range.
func (r *NumericRange) Contains(v float64) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// IsZero reports whether neither bound is set.
func (r *NumericRange) IsZero() bool {
	return r == nil || (r.Min == nil && r.Max == nil)
}

// ConfigurationFilter narrows the configurations of a dataset.
// A configuration without a target value never matches a range set on that value.
type ConfigurationFilter struct {
	TargetSparsity  *NumericRange
	TargetAuxMemory *NumericRange
	LLMID           string
}

// IsZero reports whether the filter restricts anything.
func (f *ConfigurationFilter) IsZero() bool {
	return f == nil || (f.TargetSparsity.IsZero() && f.TargetAuxMemory.IsZero() && f.LLMID == "")
}

// Matches reports whether the configuration passes the filter.
func (f *ConfigurationFilter) Matches(c Configuration) bool {
	if f == nil {
		return true
	}
	if f.LLMID != "" && c.LLMID != f.LLMID {
		return false
	}
	if !f.TargetSparsity.IsZero() {
		if c.TargetSparsity == nil || !f.TargetSparsity.Contains(*c.TargetSparsity) {
			return false
		}
	}
	if !f.TargetAuxMemory.IsZero() {
		if c.TargetAuxMemory == nil || !f.TargetAuxMemory.Contains(float64(*c.TargetAuxMemory)) {
			return false
		}
	}
	return true
}

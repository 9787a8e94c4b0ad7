package record

// ValidKind reports whether k is a known record kind.
func ValidKind(k Kind) bool {
	switch k {
	case KindEpisodic, KindSemantic, KindProcedural, KindWorking:
		return true
	}
	return false
}

// ValidScope reports whether s is a known scope.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeSession, ScopeProject, ScopeUser:
		return true
	}
	return false
}

// Validate checks the record's classification and score ranges.
func (r *Record) Validate() error {
	if r.Content == "" {
		return &ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if !ValidKind(r.Kind) {
		return &ValidationError{Field: "kind", Reason: string(r.Kind)}
	}
	if !ValidScope(r.Scope) {
		return &ValidationError{Field: "scope", Reason: string(r.Scope)}
	}
	if r.Importance < 0 || r.Importance > 1 {
		return &ValidationError{Field: "importance", Reason: "must be in [0,1]"}
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return &ValidationError{Field: "confidence", Reason: "must be in [0,1]"}
	}
	if r.AccessCount < 0 {
		return &ValidationError{Field: "access_count", Reason: "must be non-negative"}
	}
	return nil
}

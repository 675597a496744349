package submit

import "github.com/roach88/hookpoint/internal/apierr"

// Severity grades a validation result.
type Severity string

const (
	SeverityError         Severity = "error"
	SeverityWarning       Severity = "warning"
	SeverityInformational Severity = "informational"
)

// ValidationResult is one message from a validator.
type ValidationResult struct {
	// Target is the entity set or action of the entry.
	Target   string
	Property string
	Message  string
	Severity Severity
}

// ValidationResults accumulate over every entry of one submit.
type ValidationResults struct {
	items []ValidationResult
}

// Add records a result.
func (r *ValidationResults) Add(v ValidationResult) {
	r.items = append(r.items, v)
}

// AddError records an error-severity result.
func (r *ValidationResults) AddError(target, property, message string) {
	r.Add(ValidationResult{Target: target, Property: property, Message: message, Severity: SeverityError})
}

// All returns every recorded result.
func (r *ValidationResults) All() []ValidationResult {
	return append([]ValidationResult(nil), r.items...)
}

// HasErrors reports whether any result has error severity.
func (r *ValidationResults) HasErrors() bool {
	for _, v := range r.items {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Error converts the results into a VALIDATION_FAILED error carrying all
// of them, or nil when there are no errors.
func (r *ValidationResults) Error() error {
	if !r.HasErrors() {
		return nil
	}
	details := make([]apierr.Detail, len(r.items))
	for i, v := range r.items {
		details[i] = apierr.Detail{
			Target:   v.Target,
			Property: v.Property,
			Message:  v.Message,
			Severity: string(v.Severity),
		}
	}
	return apierr.NewValidation(details)
}

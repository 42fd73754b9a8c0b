package alert

// ErrValidation is a malformed-request error, the Go form of the spec's
// "Validation" error kind: replied to the user, never persisted, never
// propagated past the Engine's Register call.
type ErrValidation string

func (e ErrValidation) Error() string { return string(e) }

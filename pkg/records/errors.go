package records

import "errors"

var (
	// ErrParse is returned when a stored document is not valid JSON.
	ErrParse = errors.New("malformed document")

	// ErrSchema is returned when a document is valid JSON but its top-level
	// shape is wrong: not an object, missing collection key, collection not an
	// array, or an element that is not a record.
	ErrSchema = errors.New("invalid document shape")
)

// ValidationError reports missing or unusable caller input. It is always
// detected before any storage access.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

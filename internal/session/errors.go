package session

import (
	"fmt"

	"liveclass/pkg/types"
)

// Session management error types
var (
	ErrInvalidCourseID = fmt.Errorf("%w: course ID must be 1-64 characters, alphanumeric + underscore/hyphen only", types.ErrMalformed)
	ErrInvalidMentorID = fmt.Errorf("%w: mentor ID must be 1-64 characters, alphanumeric + underscore/hyphen only", types.ErrMalformed)
)

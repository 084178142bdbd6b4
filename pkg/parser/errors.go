package parser

import "errors"

// ErrUnknownFamily is returned when a family name is not recognized.
var ErrUnknownFamily = errors.New("parser: unknown trace family")

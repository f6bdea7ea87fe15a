// shared/kci/names.go
package kci

import (
	"regexp"
	"strings"
)

// Name validation patterns. A name is checked negatively: any match below
// means the name is rejected.
var (
	noStartChars = regexp.MustCompile(`^[^a-zA-Z0-9]`)
	noEndChars   = regexp.MustCompile(`[^a-zA-Z0-9]$`)

	invalidNameChars     = regexp.MustCompile(`[^a-zA-Z0-9.\-_+=]`)
	invalidTestNameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_+]`)
)

// IsValidName reports whether a job, kernel or defconfig style name is safe
// to use as a path component or lookup key.
//
// A valid name starts and ends with an alphanumeric character and contains
// only characters from [a-zA-Z0-9.-_+=]. Callers accepting user-supplied
// names must reject invalid ones, never sanitize them.
func IsValidName(name string) bool {
	if name == "" {
		return false
	}
	return !noStartChars.MatchString(name) &&
		!noEndChars.MatchString(name) &&
		!invalidNameChars.MatchString(name)
}

// IsValidTestName reports whether a test suite, test set or test case name
// is valid. Same rules as IsValidName except '=' is not allowed.
func IsValidTestName(name string) bool {
	if name == "" {
		return false
	}
	return !noStartChars.MatchString(name) &&
		!noEndChars.MatchString(name) &&
		!invalidTestNameChars.MatchString(name)
}

// IsHidden reports whether a file or directory name is hidden (starts with
// a dot).
func IsHidden(value string) bool {
	return strings.HasPrefix(value, ".")
}

// IsLabDir reports whether a directory name belongs to a boot lab. Lab
// directories are nested under a build directory and start with "lab-".
func IsLabDir(value string) bool {
	return strings.HasPrefix(value, "lab-")
}

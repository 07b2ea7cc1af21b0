// Package protocol defines the messages exchanged between the coordinator
// and operators: a version triple, the four CRUD requests and their
// fixed-arity tuple responses.
package protocol

import "fmt"

// Version is a {major, minor, patch} triple carried on every request.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// CurrentVersion is the protocol version spoken by this build.
var CurrentVersion = Version{Major: 1, Minor: 0, Patch: 0}

// Compare returns -1, 0 or 1 when v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	for _, d := range [3]int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		switch {
		case d < 0:
			return -1
		case d > 0:
			return 1
		}
	}
	return 0
}

// NewerThan reports whether v is strictly newer than o.
func (v Version) NewerThan(o Version) bool {
	return v.Compare(o) > 0
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

package actions

import (
	"fmt"
	"strings"
)

// DeleteMethod selects what happens to the members of each group.
type DeleteMethod int

const (
	None DeleteMethod = iota
	Delete
	AllExceptNewest
	AllExceptOldest
	OneNewest
	OneOldest
	AllExceptBiggest
	AllExceptSmallest
	OneBiggest
	OneSmallest
	HardLink
)

var methodNames = []string{
	None:              "none",
	Delete:            "delete",
	AllExceptNewest:   "all-except-newest",
	AllExceptOldest:   "all-except-oldest",
	OneNewest:         "one-newest",
	OneOldest:         "one-oldest",
	AllExceptBiggest:  "all-except-biggest",
	AllExceptSmallest: "all-except-smallest",
	OneBiggest:        "one-biggest",
	OneSmallest:       "one-smallest",
	HardLink:          "hardlink",
}

func (m DeleteMethod) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseDeleteMethod parses a kebab-case method name.
func ParseDeleteMethod(s string) (DeleteMethod, error) {
	for i, name := range methodNames {
		if strings.EqualFold(s, name) {
			return DeleteMethod(i), nil
		}
	}
	return None, fmt.Errorf("unknown delete method %q (want one of %s)", s, strings.Join(methodNames, ", "))
}

// Failure is a member that could not be processed.
type Failure struct {
	Path   string
	Reason string
}

func (f Failure) String() string {
	return fmt.Sprintf("skipped %s: %s", EscapePath(f.Path), f.Reason)
}

// Report is the outcome of Apply.
type Report struct {
	Deleted    []string
	Linked     []string // replaced by a hard link
	Failed     []Failure
	FreedBytes int64
}

// EscapePath escapes special characters in paths for safe terminal output.
func EscapePath(path string) string {
	r := strings.NewReplacer(
		"\t", "\\t",
		"\n", "\\n",
		"\r", "\\r",
	)
	return r.Replace(path)
}

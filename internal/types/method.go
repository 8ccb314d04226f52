package types

import "fmt"

// CheckingMethod selects how duplicate candidates are grouped.
type CheckingMethod int

const (
	MethodNone CheckingMethod = iota
	MethodName
	MethodSize
	MethodSizeName
	MethodHash
)

var methodNames = map[CheckingMethod]string{
	MethodNone:     "none",
	MethodName:     "name",
	MethodSize:     "size",
	MethodSizeName: "size-name",
	MethodHash:     "hash",
}

func (m CheckingMethod) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseCheckingMethod parses a method name as printed by String.
func ParseCheckingMethod(s string) (CheckingMethod, error) {
	for m, name := range methodNames {
		if name == s && m != MethodNone {
			return m, nil
		}
	}
	return MethodNone, fmt.Errorf("unknown checking method %q (want name, size, size-name or hash)", s)
}

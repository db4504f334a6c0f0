// Package symname splits compiler symbol names into a declaring type and a
// method name.
//
// Go symbols look like "example.com/pkg.(*T).M", "example.com/pkg.T.M" or
// "example.com/pkg.F". Package level functions are attributed to the package
// itself, so "example.com/pkg.TestFoo" yields type "example.com/pkg" and method
// "TestFoo". Native (C++) names use "::" as the scope separator.
package symname

import (
	"strings"
)

// NativeSeparator is the scope separator of native qualified names.
const NativeSeparator = "::"

// SplitGo splits a Go symbol name. ok is false for closures, package
// initializers, compiler generated symbols and malformed names.
func SplitGo(name string) (typeName, method string, ok bool) {
	if name == "" || strings.HasPrefix(name, "type:") || strings.HasPrefix(name, "go:") ||
		strings.HasPrefix(name, "go.") || strings.HasSuffix(name, "-fm") {
		return "", "", false
	}

	// The package path ends at the first dot after the last slash; the linker
	// escapes dots in the last path element.
	head := name
	if i := strings.Index(name, "["); i >= 0 {
		head = name[:i]
	}
	slash := strings.LastIndex(head, "/")
	dot := strings.Index(name[slash+1:], ".")
	if dot < 0 {
		return "", "", false
	}
	pkg := name[:slash+1+dot]
	rest := stripTypeArgs(name[slash+1+dot+1:])

	parts := strings.Split(rest, ".")
	switch len(parts) {
	case 1:
		typeName, method = pkg, parts[0]
	case 2:
		recv := strings.TrimSuffix(strings.TrimPrefix(parts[0], "(*"), ")")
		if recv == "" || strings.ContainsAny(recv, "()*") {
			return "", "", false
		}
		typeName, method = pkg+"."+recv, parts[1]
	default:
		return "", "", false
	}

	if !isMethodName(method) {
		return "", "", false
	}
	return typeName, method, true
}

// SplitNative splits a "ns::T::M" name into "ns.T" and "M". Names without a
// scope are rejected.
func SplitNative(name string) (typeName, method string, ok bool) {
	idx := strings.LastIndex(name, NativeSeparator)
	if idx <= 0 {
		return "", "", false
	}
	method = name[idx+len(NativeSeparator):]
	if method == "" {
		return "", "", false
	}
	return strings.ReplaceAll(name[:idx], NativeSeparator, "."), method, true
}

// NativeName builds the native spelling of typeName.methodName, replacing every
// '.' of the type with "::".
func NativeName(typeName, methodName string) string {
	return strings.ReplaceAll(typeName, ".", NativeSeparator) + NativeSeparator + methodName
}

// stripTypeArgs removes generic instantiation brackets, "T[go.shape.int].M"
// becomes "T.M".
func stripTypeArgs(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}

	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isMethodName(s string) bool {
	if s == "" || s == "init" || s == "_" {
		return false
	}
	// Closures (func1), defer/go wrappers and numbered init functions.
	if strings.HasPrefix(s, "gowrap") || strings.HasPrefix(s, "deferwrap") {
		return false
	}
	if strings.HasPrefix(s, "func") && len(s) > 4 && isDigits(s[4:]) {
		return false
	}
	return !isDigits(s)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

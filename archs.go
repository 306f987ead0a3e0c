package repod

import "strings"

// Architectures contains one entry for each known architecture identifier.
var Architectures = map[string]bool{
	"any":      true,
	"x86_64":   true,
	"aarch64":  true,
	"armv6h":   true,
	"armv7h":   true,
	"i686":     true,
	"pentium4": true,
	"riscv64":  true,
}

// ValidArchitecture reports whether arch is a known architecture identifier.
func ValidArchitecture(arch string) bool {
	return Architectures[arch]
}

// HasArchSuffix reports whether name ends in an architecture identifier
// (e.g. foo-2.1-1-x86_64) and returns the identifier.
func HasArchSuffix(name string) (archIdentifier string, ok bool) {
	for a := range Architectures {
		if strings.HasSuffix(name, "-"+a) {
			return a, true
		}
	}
	return "", false
}

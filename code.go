package shardarc

// codeTier ranks a character class: digits, then lowercase, then
// uppercase. Anything else sorts last.
func codeTier(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return 0
	case c >= 'a' && c <= 'z':
		return 1
	case c >= 'A' && c <= 'Z':
		return 2
	}
	return 3
}

// CompareCodes compares two codes and returns -1, 0 or +1.
//
// Shorter codes sort first. Codes of equal length are compared
// character by character, digits before lowercase before uppercase,
// and by byte value within the same class. Native string ordering
// must never be used for codes.
func CompareCodes(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}

	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if ca == cb {
			continue
		}
		if ta, tb := codeTier(ca), codeTier(cb); ta != tb {
			if ta < tb {
				return -1
			}
			return 1
		}
		if ca < cb {
			return -1
		}
		return 1
	}
	return 0
}

// ValidCode reports whether s is a non-empty code made only of digits
// and ASCII letters.
func ValidCode(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if codeTier(s[i]) > 2 {
			return false
		}
	}
	return true
}

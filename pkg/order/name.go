package order

import (
	"strconv"
	"strings"
)

// CompareNames orders server names such as "DE#9" before "DE#10": the
// case-folded prefix first, then the trailing number as an integer, then
// the raw name.
func CompareNames(a, b string) int {
	pa, na, oka := splitName(a)
	pb, nb, okb := splitName(b)

	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	switch {
	case !oka && okb:
		return -1
	case oka && !okb:
		return 1
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(a, b)
}

func splitName(name string) (prefix string, number int, ok bool) {
	end := len(name)
	for end > 0 && name[end-1] >= '0' && name[end-1] <= '9' {
		end--
	}
	prefix = strings.ToUpper(strings.TrimRight(name[:end], "#- "))
	if end == len(name) {
		return prefix, 0, false
	}
	n, err := strconv.Atoi(name[end:])
	if err != nil {
		return strings.ToUpper(name), 0, false
	}
	return prefix, n, true
}

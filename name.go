package gofat32

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/aligator/gofat32/checkpoint"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

// illegalNameChars may not appear in a short name.
const illegalNameChars = "\\/:*?\"<>|;, "

// shortName generates the on disk 8.3 name of a user supplied name.
// A base longer than 8 bytes is cut to 7 bytes and '~', an extension longer than 3 bytes
// to 2 bytes and '~'. The returned case flags keep an all lower case base or extension
// displayable in lower case.
func shortName(name string) ([11]byte, byte, error) {
	var raw [11]byte

	if name == "" || name[0] == '.' {
		return raw, 0, checkpoint.Wrap(fmt.Errorf("name %q", name), ErrInvalidName)
	}
	if i := strings.IndexAny(name, illegalNameChars); i >= 0 {
		return raw, 0, checkpoint.Wrap(fmt.Errorf("character %q in %q", name[i], name), ErrInvalidName)
	}

	base, ext := name, ""
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		base, ext = name[:dot], name[dot+1:]
	}
	base = strings.ReplaceAll(base, ".", "")

	var flags byte
	if isLower(base) {
		flags |= caseLowerBase
	}
	if isLower(ext) {
		flags |= caseLowerExt
	}

	// A Caser keeps state, so each call gets its own.
	upper := cases.Upper(language.Und)
	b, err := encodeOEM(upper.String(base))
	if err != nil {
		return raw, 0, checkpoint.Wrap(err, ErrInvalidName)
	}
	e, err := encodeOEM(upper.String(ext))
	if err != nil {
		return raw, 0, checkpoint.Wrap(err, ErrInvalidName)
	}

	fitName(raw[:8], b)
	fitName(raw[8:], e)

	if raw[0] == entryDeleted {
		raw[0] = entryKanji
	}
	return raw, flags, nil
}

// fitName left justifies src in dst and pads it with spaces.
// If src is too long, the last byte of dst becomes '~'.
func fitName(dst, src []byte) {
	if len(src) > len(dst) {
		n := copy(dst, src[:len(dst)-1])
		dst[n] = '~'
		return
	}

	n := copy(dst, src)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
}

func isLower(s string) bool {
	return s != strings.ToUpper(s) && s == strings.ToLower(s)
}

func encodeOEM(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			return nil, fmt.Errorf("control character %U", r)
		}
		b, ok := charmap.CodePage437.EncodeRune(r)
		if !ok {
			return nil, fmt.Errorf("character %q has no short name encoding", r)
		}
		out = append(out, b)
	}
	return out, nil
}

// lookupKey returns the form in which a path component is compared with directory entries.
// It is the display name of the generated short name, so long input names find the entries
// they created.
func lookupKey(component string) (string, error) {
	if component == "." || component == ".." {
		return component, nil
	}

	raw, _, err := shortName(component)
	if err != nil {
		return "", err
	}
	h := EntryHeader{Name: raw}
	return h.DisplayName(), nil
}

// namesEqual compares two names case insensitive.
// Unless strict is set, names of equal length are also equal if only their last byte differs.
// Config.StrictNames turns that tolerance off.
func namesEqual(a, b string, strict bool) bool {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if len(a) != len(b) {
		return false
	}
	if strict || len(a) == 0 {
		return a == b
	}
	return a[:len(a)-1] == b[:len(b)-1]
}

// Match reports whether name matches the wildcard pattern.
// '*' matches any run of bytes, including an empty one, '?' matches exactly one byte.
// The comparison is case insensitive.
func Match(name, pattern string) bool {
	name, pattern = strings.ToUpper(name), strings.ToUpper(pattern)

	runs := strings.Split(pattern, "*")
	if len(runs) == 1 {
		return len(name) == len(pattern) && matchRun(name, pattern)
	}

	// The first run is anchored at the start.
	first := runs[0]
	if len(first) > len(name) || !matchRun(name[:len(first)], first) {
		return false
	}
	pos := len(first)

	for _, run := range runs[1 : len(runs)-1] {
		i := indexRun(name[pos:], run)
		if i < 0 {
			return false
		}
		pos += i + len(run)
	}

	// The last run is anchored at the end and may not overlap what was already matched.
	last := runs[len(runs)-1]
	if len(name)-pos < len(last) {
		return false
	}
	return matchRun(name[len(name)-len(last):], last)
}

// matchRun compares s and run of the same length, '?' in run matches any byte.
func matchRun(s, run string) bool {
	for i := 0; i < len(run); i++ {
		if run[i] != '?' && run[i] != s[i] {
			return false
		}
	}
	return true
}

func indexRun(s, run string) int {
	for i := 0; i+len(run) <= len(s); i++ {
		if matchRun(s[i:i+len(run)], run) {
			return i
		}
	}
	return -1
}

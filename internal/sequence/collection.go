// Package sequence parses and discovers numbered file sequences such as
// render.%04d.exr [1-24] and groups loose files into them.
package sequence

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNotSequence is returned when a path is a plain file rather than a
// sequence pattern. Callers treat such paths as single files.
var ErrNotSequence = errors.New("not a sequence")

// Collection is a numbered file sequence: Head + index + Tail, the index
// zero-padded to Padding digits (0 = unpadded).
type Collection struct {
	Head    string
	Tail    string
	Padding int
	Indexes []int
}

// New returns a collection over the given indexes.
func New(head, tail string, padding int, indexes ...int) *Collection {
	c := &Collection{Head: head, Tail: tail, Padding: padding}
	c.Add(indexes...)
	return c
}

// Add inserts indexes, keeping them sorted and unique.
func (c *Collection) Add(indexes ...int) {
	seen := make(map[int]bool, len(c.Indexes)+len(indexes))
	for _, i := range c.Indexes {
		seen[i] = true
	}
	for _, i := range indexes {
		if !seen[i] {
			seen[i] = true
			c.Indexes = append(c.Indexes, i)
		}
	}
	sort.Ints(c.Indexes)
}

// Len returns the number of members.
func (c *Collection) Len() int {
	return len(c.Indexes)
}

// IndexToken renders index the way it appears in member file names.
func (c *Collection) IndexToken(index int) string {
	if c.Padding <= 0 {
		return strconv.Itoa(index)
	}
	return fmt.Sprintf("%0*d", c.Padding, index)
}

// Member returns the path of the member with the given index.
func (c *Collection) Member(index int) string {
	return c.Head + c.IndexToken(index) + c.Tail
}

// Paths returns every member path in index order.
func (c *Collection) Paths() []string {
	out := make([]string, len(c.Indexes))
	for i, idx := range c.Indexes {
		out[i] = c.Member(idx)
	}
	return out
}

// Pattern returns the printf-style pattern, e.g. render.%04d.exr.
func (c *Collection) Pattern() string {
	if c.Padding <= 0 {
		return c.Head + "%d" + c.Tail
	}
	return fmt.Sprintf("%s%%0%dd%s", c.Head, c.Padding, c.Tail)
}

// Match returns the index token of path when it is a member.
func (c *Collection) Match(path string) (string, bool) {
	if !strings.HasPrefix(path, c.Head) || !strings.HasSuffix(path, c.Tail) {
		return "", false
	}
	if len(path) < len(c.Head)+len(c.Tail) {
		return "", false
	}
	token := path[len(c.Head) : len(path)-len(c.Tail)]
	index, ok := c.parseToken(token)
	if !ok {
		return "", false
	}
	for _, i := range c.Indexes {
		if i == index {
			return token, true
		}
	}
	return "", false
}

// parseToken checks a digit run against the padding rules.
func (c *Collection) parseToken(token string) (int, bool) {
	if token == "" {
		return 0, false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	if c.Padding > 0 {
		if len(token) < c.Padding || (len(token) > c.Padding && token[0] == '0') {
			return 0, false
		}
	} else if len(token) > 1 && token[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Ranges renders the indexes compactly, e.g. "1-3, 5".
func (c *Collection) Ranges() string {
	if len(c.Indexes) == 0 {
		return ""
	}
	var parts []string
	start, prev := c.Indexes[0], c.Indexes[0]
	flush := func() {
		if start == prev {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, prev))
		}
	}
	for _, i := range c.Indexes[1:] {
		if i == prev+1 {
			prev = i
			continue
		}
		flush()
		start, prev = i, i
	}
	flush()
	return strings.Join(parts, ", ")
}

// String renders the collection as a parseable pattern with ranges.
func (c *Collection) String() string {
	if len(c.Indexes) == 0 {
		return c.Pattern()
	}
	return fmt.Sprintf("%s [%s]", c.Pattern(), c.Ranges())
}

// Ext returns the file extension shared by the members, e.g. ".exr".
func (c *Collection) Ext() string {
	return filepath.Ext(c.Tail)
}

var (
	printfPadding = regexp.MustCompile(`%(\d*)d`)
	hashPadding   = regexp.MustCompile(`#+`)
	rangesSuffix  = regexp.MustCompile(`^(.*\S)\s+\[([0-9,\s-]*)\]$`)
)

// Parse reads "head%04dtail [ranges]" (or '#' padding, one per digit).
// The ranges part is optional; without it the collection has no indexes
// and Resolve fills them from disk. Paths without a padding token yield
// ErrNotSequence.
func Parse(pattern string) (*Collection, error) {
	body, ranges := pattern, ""
	if m := rangesSuffix.FindStringSubmatch(pattern); m != nil {
		body, ranges = m[1], m[2]
	}

	c, err := parseBody(body)
	if err != nil {
		return nil, err
	}

	if ranges != "" {
		indexes, err := parseRanges(ranges)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pattern, err)
		}
		c.Add(indexes...)
	}
	return c, nil
}

func parseBody(body string) (*Collection, error) {
	if locs := printfPadding.FindAllStringSubmatchIndex(body, -1); len(locs) > 0 {
		loc := locs[len(locs)-1]
		padding := 0
		if loc[3] > loc[2] {
			n, err := strconv.Atoi(body[loc[2]:loc[3]])
			if err != nil {
				return nil, fmt.Errorf("%s: bad padding: %w", body, err)
			}
			padding = n
		}
		return &Collection{Head: body[:loc[0]], Tail: body[loc[1]:], Padding: padding}, nil
	}

	if locs := hashPadding.FindAllStringIndex(body, -1); len(locs) > 0 {
		loc := locs[len(locs)-1]
		return &Collection{Head: body[:loc[0]], Tail: body[loc[1]:], Padding: loc[1] - loc[0]}, nil
	}

	return nil, fmt.Errorf("%s: %w", body, ErrNotSequence)
}

// parseRanges reads "1-3, 5, 7-9".
func parseRanges(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("bad range %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("bad range %q", part)
			}
		}
		if end < start {
			return nil, fmt.Errorf("bad range %q: end before start", part)
		}
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
	}
	return out, nil
}

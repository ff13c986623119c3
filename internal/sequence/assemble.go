package sequence

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// trailingDigits finds the last digit run in a file name.
var trailingDigits = regexp.MustCompile(`(\d+)(\D*)$`)

// Assemble groups paths into collections of at least minimum members.
// Paths that fit no collection are returned as remainder, sorted.
func Assemble(paths []string, minimum int) ([]*Collection, []string) {
	if minimum < 1 {
		minimum = 2
	}

	type key struct{ head, tail string }
	type member struct {
		path  string
		token string
	}
	groups := make(map[key][]member)
	var order []key
	var remainder []string

	for _, p := range paths {
		dir, base := filepath.Split(p)
		loc := trailingDigits.FindStringSubmatchIndex(base)
		if loc == nil {
			remainder = append(remainder, p)
			continue
		}
		k := key{head: dir + base[:loc[2]], tail: base[loc[3]:]}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], member{path: p, token: base[loc[2]:loc[3]]})
	}

	var collections []*Collection
	for _, k := range order {
		members := groups[k]
		if len(members) < minimum {
			for _, m := range members {
				remainder = append(remainder, m.path)
			}
			continue
		}

		c := &Collection{Head: k.head, Tail: k.tail, Padding: DetectPadding(members[0].token)}
		for _, m := range members[1:] {
			if p := DetectPadding(m.token); p > c.Padding {
				c.Padding = p
			}
		}
		for _, m := range members {
			if index, ok := c.parseToken(m.token); ok {
				c.Add(index)
			} else {
				remainder = append(remainder, m.path)
			}
		}
		if c.Len() < minimum {
			remainder = append(remainder, c.Paths()...)
			continue
		}
		collections = append(collections, c)
	}

	sort.Strings(remainder)
	sort.Slice(collections, func(i, j int) bool {
		return collections[i].Head+collections[i].Tail < collections[j].Head+collections[j].Tail
	})
	return collections, remainder
}

// DetectPadding returns the token length when it is zero-padded, else 0.
func DetectPadding(token string) int {
	if len(token) > 1 && token[0] == '0' {
		return len(token)
	}
	if _, err := strconv.Atoi(token); err != nil {
		return len(token)
	}
	return 0
}

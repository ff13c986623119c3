package sequence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Resolve parses path and, when it names no explicit ranges, fills the
// collection with the members present on disk. A pattern matching no
// files yields ErrNotSequence.
func Resolve(fs afero.Fs, path string) (*Collection, error) {
	c, err := Parse(path)
	if err != nil {
		return nil, err
	}
	if c.Len() > 0 {
		return c, nil
	}
	if err := c.Discover(fs); err != nil {
		return nil, err
	}
	if c.Len() == 0 {
		return nil, fmt.Errorf("%s: no members on disk: %w", path, ErrNotSequence)
	}
	return c, nil
}

// Discover adds the indexes of every existing member file.
func (c *Collection) Discover(fs afero.Fs) error {
	dir, prefix := splitHead(c.Head)
	if strings.ContainsAny(c.Tail, `/\`) {
		return fmt.Errorf("%s: index must be in the file name", c.Pattern())
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, c.Tail) {
			continue
		}
		if len(name) <= len(prefix)+len(c.Tail) {
			continue
		}
		token := name[len(prefix) : len(name)-len(c.Tail)]
		if index, ok := c.parseToken(token); ok {
			c.Add(index)
		}
	}
	return nil
}

// splitHead separates the directory part of a head from the file prefix.
func splitHead(head string) (dir, prefix string) {
	i := strings.LastIndexAny(head, `/`+string(filepath.Separator))
	if i < 0 {
		return ".", head
	}
	dir = head[:i+1]
	if dir == "" {
		dir = "."
	}
	return dir, head[i+1:]
}

package publish

import (
	"fmt"
	"strings"

	"github.com/dhowden/tag"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
)

// ProbeTags reads embedded audio tags from a single file into metadata
// keys prefixed with "tag.". Empty tags are left out.
func ProbeTags(fs afero.Fs, path string) (session.Metadata, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	md := session.Metadata{
		"tag.format":    string(m.Format()),
		"tag.file_type": string(m.FileType()),
	}
	for key, value := range map[string]string{
		"tag.title":        m.Title(),
		"tag.artist":       m.Artist(),
		"tag.album":        m.Album(),
		"tag.album_artist": m.AlbumArtist(),
		"tag.genre":        m.Genre(),
	} {
		if value = strings.TrimSpace(norm.NFC.String(value)); value != "" {
			md[key] = value
		}
	}
	if m.Year() > 0 {
		md["tag.year"] = fmt.Sprintf("%d", m.Year())
	}
	if track, _ := m.Track(); track > 0 {
		md["tag.track"] = fmt.Sprintf("%d", track)
	}
	return md, nil
}

// normalizeName brings identity strings to NFC so names typed on
// different filesystems compare equal
func normalizeName(s string) string {
	return norm.NFC.String(s)
}

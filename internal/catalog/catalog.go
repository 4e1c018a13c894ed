// Package catalog holds the list logic shared by the web pages and the CLI.
package catalog

import (
	"path"
	"strings"

	"github.com/matthewsawatzky/minidrive/internal/api"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".bmp":  true,
	".avif": true,
}

// FilterFiles keeps the records whose name, owner name or owner email
// contains query, ignoring case. A blank query returns files unchanged.
func FilterFiles(files []api.FileRecord, query string) []api.FileRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return files
	}
	out := make([]api.FileRecord, 0, len(files))
	for _, f := range files {
		if matchesLower(f, q) {
			out = append(out, f)
		}
	}
	return out
}

// Matches reports whether f passes FilterFiles for query. Each field is
// tested on its own, so a query never spans name and owner.
func Matches(f api.FileRecord, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	return q == "" || matchesLower(f, q)
}

func matchesLower(f api.FileRecord, q string) bool {
	if strings.Contains(strings.ToLower(f.Name), q) {
		return true
	}
	if f.Owner == nil {
		return false
	}
	return strings.Contains(strings.ToLower(f.Owner.Name), q) ||
		strings.Contains(strings.ToLower(f.Owner.Email), q)
}

// IsImageName reports whether name looks like an image the browser can show.
func IsImageName(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

// PermissionBadges lists the grants on s. View is always present.
func PermissionBadges(s api.ShareRecord) []string {
	badges := []string{"view"}
	if s.CanEdit {
		badges = append(badges, "edit")
	}
	if s.CanDelete {
		badges = append(badges, "delete")
	}
	return badges
}

func TotalShares(files []api.FileRecord) int {
	n := 0
	for _, f := range files {
		n += f.ShareCount
	}
	return n
}

// FileName returns the display name of a share's file, or "" when the
// backend sent the share without its file.
func FileName(s api.ShareRecord) string {
	if s.File == nil {
		return ""
	}
	return s.File.Name
}

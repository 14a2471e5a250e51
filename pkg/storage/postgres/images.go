package postgres

import (
	"database/sql"
	"encoding/json"
	"strings"
)

// encodeImages stores an image list as a JSON array, or NULL when empty.
func encodeImages(images []string) sql.NullString {
	clean := make([]string, 0, len(images))
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			clean = append(clean, img)
		}
	}
	if len(clean) == 0 {
		return sql.NullString{}
	}
	b, _ := json.Marshal(clean)
	return sql.NullString{String: string(b), Valid: true}
}

// decodeImages reads a stored image list. Legacy rows that hold a single
// bare URL are returned as a one-element list.
func decodeImages(raw sql.NullString) []string {
	s := strings.TrimSpace(raw.String)
	if !raw.Valid || s == "" {
		return []string{}
	}
	var images []string
	if strings.HasPrefix(s, "[") && json.Unmarshal([]byte(s), &images) == nil {
		if images == nil {
			return []string{}
		}
		return images
	}
	return []string{s}
}

package resolver

import (
	"strings"

	"github.com/google/uuid"

	"v4vfm/model"
)

// NormalizeGUID trims g and rewrites UUID-shaped guids (podcast:guid values)
// into canonical lowercase hyphenated form. Other values are only trimmed.
func NormalizeGUID(g string) string {
	g = strings.TrimSpace(g)
	if id, err := uuid.Parse(g); err == nil {
		return id.String()
	}
	return g
}

func normalizeRef(ref model.RemoteItemReference) model.RemoteItemReference {
	ref.FeedGUID = NormalizeGUID(ref.FeedGUID)
	ref.ItemGUID = strings.TrimSpace(ref.ItemGUID)
	ref.FeedURL = strings.TrimSpace(ref.FeedURL)
	return ref
}

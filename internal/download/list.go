package download

import (
	"cmp"
	"slices"

	"github.com/hogliux/collect/internal/domain"
)

// BuildFormList turns a manifest into the chooser list, sorted by display
// name. Equal names are ordered by key so the result is deterministic.
func BuildFormList(manifest map[string]domain.FormDetails) []domain.FormListItem {
	items := make([]domain.FormListItem, 0, len(manifest))
	for key, d := range manifest {
		items = append(items, domain.NewFormListItem(key, d))
	}
	slices.SortStableFunc(items, func(a, b domain.FormListItem) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.Key, b.Key))
	})
	return items
}

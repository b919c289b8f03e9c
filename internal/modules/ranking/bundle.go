package ranking

import (
	"github.com/google/uuid"

	"github.com/foliorank/foliorank/internal/domain"
)

// BundleOf wraps bare portfolio specs into a rank bundle, assigning a
// generated id to each. Callers comparing a single portfolio do not have
// to build bundle plumbing themselves; item order is preserved.
func BundleOf(specs ...domain.PortfolioSpec) domain.RankBundle {
	items := make([]domain.RankItem, len(specs))
	for i, spec := range specs {
		items[i] = domain.RankItem{
			ID:        uuid.NewString(),
			Portfolio: spec.Clone(),
		}
	}
	return domain.RankBundle{Version: domain.RankBundleVersion, Items: items}
}

package access

import (
	"time"

	"github.com/reelpass/billing/internal/models"
	"github.com/reelpass/billing/pkg/types"
)

// Evaluate derives the capability set for a tier and its backing
// subscription record. It is pure and must be re-run on every access check:
// the denormalized tier on the user row can lag the real expiry until the
// next sweep or lazy correction, so an expired or missing subscription
// forces the free tier regardless of the stored value.
func Evaluate(tier types.Tier, sub *models.Subscription) types.AccessLevel {
	return EvaluateAt(tier, sub, time.Now())
}

// EvaluateAt is Evaluate with an explicit clock.
func EvaluateAt(tier types.Tier, sub *models.Subscription, now time.Time) types.AccessLevel {
	if sub == nil || !sub.Current() || sub.ExpiredAt(now) {
		tier = types.TierFree
	} else {
		// The subscription record is authoritative; the caller-supplied tier
		// is only a denormalized cache.
		tier = sub.Tier
	}

	switch tier {
	case types.TierStandard:
		return types.AccessLevel{
			Tier:         types.TierStandard,
			CanStream:    true,
			CanDownload:  true,
			MaxDownloads: 10,
		}
	case types.TierPremium:
		return types.AccessLevel{
			Tier:                    types.TierPremium,
			CanStream:               true,
			CanDownload:             true,
			CanAccessPremiumContent: true,
			HighestQuality:          true,
			MaxDownloads:            types.UnlimitedDownloads,
		}
	default:
		return types.AccessLevel{
			Tier:         types.TierFree,
			MaxDownloads: 0,
		}
	}
}

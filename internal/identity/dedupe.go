package identity

import (
	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/types"
)

// minReportedValue is the threshold below which an upstream protocol value is
// treated as unreliable and recomputed from its token amounts. The upstream
// aggregator occasionally reports zero for populated positions.
const minReportedValue = 0.01

// Dedupe collapses raw upstream protocol records into canonical entries.
//
// Protocols are grouped by case-sensitive name; when a name repeats within
// one fetch, their position lists are unioned and the larger of the two
// net-USD values is kept (the upstream sometimes reports a stale lower value
// on one of two duplicate entries). Within a protocol, positions are grouped
// by PositionKey; the first occurrence wins and later duplicates are dropped.
//
// Pure function: callers log before/after counts for observability.
func Dedupe(raw []models.RawProtocol) []models.Protocol {
	byName := make(map[string]*models.Protocol)
	order := make([]string, 0, len(raw))

	for _, rp := range raw {
		existing, ok := byName[rp.Name]
		if !ok {
			p := models.Protocol{
				Name:        rp.Name,
				Chain:       rp.Chain,
				NetUSDValue: rp.NetUSDValue,
				Positions:   append([]models.RawPosition(nil), rp.Positions...),
			}
			byName[rp.Name] = &p
			order = append(order, rp.Name)
			continue
		}

		existing.Positions = append(existing.Positions, rp.Positions...)
		if rp.NetUSDValue > existing.NetUSDValue {
			existing.NetUSDValue = rp.NetUSDValue
		}
	}

	result := make([]models.Protocol, 0, len(order))
	for _, name := range order {
		p := byName[name]
		p.Positions = dedupePositions(p.Positions)

		if types.SanitizeUSD(p.NetUSDValue) < minReportedValue {
			p.NetUSDValue = recomputeValue(p.Positions)
		}

		result = append(result, *p)
	}

	return result
}

// dedupePositions drops positions whose signature was already seen.
// Duplicates are assumed identical, so they are dropped rather than merged.
func dedupePositions(positions []models.RawPosition) []models.RawPosition {
	seen := make(map[string]struct{}, len(positions))
	out := positions[:0]

	for _, pos := range positions {
		key := PositionKey(&pos)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, pos)
	}

	return out
}

// recomputeValue sums amount x price over supply and reward tokens
func recomputeValue(positions []models.RawPosition) float64 {
	var total float64
	for _, pos := range positions {
		for _, t := range pos.SupplyTokens {
			total += types.SanitizeAmount(t.Amount) * types.SanitizeUSD(t.PriceUSD)
		}
		for _, t := range pos.RewardTokens {
			total += types.SanitizeAmount(t.Amount) * types.SanitizeUSD(t.PriceUSD)
		}
	}
	return total
}

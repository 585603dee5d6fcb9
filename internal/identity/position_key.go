// Package identity derives stable deduplication keys for protocol positions
// so repeated upstream fetches collapse to one canonical entry.
package identity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/defi-portfolio-tracker/internal/models"
)

// noPool is the key segment used when the upstream reports no pool identifier
const noPool = "no-pool"

// PositionKey computes the dedup signature for a position:
// the pool ID (or "no-pool") plus the sorted list of "symbol:amount" pairs
// for its supply tokens, with amounts rendered at 6 decimal places.
// Two positions with the same signature within one fetch are the same
// economic position; positions with differing token amounts are distinct
// even under the same pool.
func PositionKey(pos *models.RawPosition) string {
	poolID := pos.PoolID
	if poolID == "" {
		poolID = noPool
	}

	parts := make([]string, 0, len(pos.SupplyTokens))
	for _, t := range pos.SupplyTokens {
		parts = append(parts, fmt.Sprintf("%s:%.6f", t.Symbol, t.Amount))
	}
	sort.Strings(parts)

	return poolID + "|" + strings.Join(parts, ",")
}

// PositionID derives the stable persisted identifier for a position within a
// protocol. It must not change across refreshes for the same economic
// position or all derived APY history for that position is corrupted.
func PositionID(protocolName string, pos *models.RawPosition) string {
	return protocolName + "|" + PositionKey(pos)
}

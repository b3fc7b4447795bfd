package scanner

import "wallet-sentry/monitor/internal/models"

// Admit filters candidate alerts down to the ones worth inserting:
// anything whose transaction hash is already known for the item is
// dropped, and duplicate hashes inside the batch itself collapse to one
// row. The EVM explorer merge produces those in-batch duplicates
// naturally: an ERC-20 transfer shows up in both the native and the token
// listing under the same hash, and the token leg is the one users care
// about, so it wins over a native leg.
//
// Admit is a pure filter. The storage layer's ON CONFLICT DO NOTHING
// insert is what closes the race between two concurrent passes over the
// same item; a conflict there is treated as "already admitted", never as
// an error.
func Admit(candidates []models.TransactionAlert, existingHashes map[string]struct{}) []models.TransactionAlert {
	admitted := make([]models.TransactionAlert, 0, len(candidates))
	seen := make(map[string]int, len(candidates))

	for _, candidate := range candidates {
		if _, exists := existingHashes[candidate.TransactionHash]; exists {
			continue
		}
		if idx, dup := seen[candidate.TransactionHash]; dup {
			if admitted[idx].Type != models.AlertTypeTokenTransfer && candidate.Type == models.AlertTypeTokenTransfer {
				admitted[idx] = candidate
			}
			continue
		}
		seen[candidate.TransactionHash] = len(admitted)
		admitted = append(admitted, candidate)
	}
	return admitted
}

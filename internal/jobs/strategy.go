package jobs

import (
	"time"

	"github.com/vrsandeep/collections-go/internal/models"
)

// Plan is the strategy chosen for a job at submit time. Kind selects which
// fields are meaningful: IDs for chunked, SourceCollectionID for set-based.
type Plan struct {
	Kind               models.StrategyKind
	CollectionID       string
	SourceCollectionID string
	IDs                []int64
	BatchSize          int
	BatchDelay         time.Duration
}

// planFor validates req and picks its strategy. Explicit ids always run
// chunked and a select-all always runs set-based.
func planFor(collectionID string, req models.BulkAddRequest, t Tuning) (Plan, error) {
	if collectionID == "" {
		return Plan{}, validationError("target collection is required")
	}
	hasIDs := len(req.CompanyIDs) > 0
	if req.SelectAll == hasIDs {
		return Plan{}, validationError("exactly one of company_ids or select_all with source_collection_id is required")
	}
	if req.SelectAll {
		if req.SourceCollectionID == "" {
			return Plan{}, validationError("select_all requires source_collection_id")
		}
		if req.SourceCollectionID == collectionID {
			return Plan{}, validationError("source and target collection must differ")
		}
		return Plan{
			Kind:               models.StrategySetBased,
			CollectionID:       collectionID,
			SourceCollectionID: req.SourceCollectionID,
		}, nil
	}
	if req.SourceCollectionID != "" {
		return Plan{}, validationError("source_collection_id is only valid with select_all")
	}
	for _, id := range req.CompanyIDs {
		if id <= 0 {
			return Plan{}, validationError("company ids must be positive")
		}
	}
	return Plan{
		Kind:         models.StrategyChunked,
		CollectionID: collectionID,
		IDs:          distinct(req.CompanyIDs),
		BatchSize:    t.BatchSize,
		BatchDelay:   t.BatchDelay,
	}, nil
}

// distinct removes duplicates keeping first-seen order.
func distinct(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func batches(ids []int64, size int) [][]int64 {
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

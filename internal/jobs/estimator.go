package jobs

import (
	"context"
	"fmt"

	"github.com/vrsandeep/collections-go/internal/models"
)

// DryRun estimates what submitting req would do without creating a job or
// touching membership rows. new + already existing always equals the size of
// the requested set: the distinct ids, or the source collection's members.
func (e *Engine) DryRun(ctx context.Context, collectionID string, req models.BulkAddRequest) (*models.DryRunEstimate, error) {
	tuning := e.Tuning()
	plan, err := planFor(collectionID, req, tuning)
	if err != nil {
		return nil, err
	}
	if _, err := e.collection(ctx, collectionID, "target"); err != nil {
		return nil, err
	}
	if err := e.checkCompanies(ctx, plan); err != nil {
		return nil, err
	}

	var requested, existing int
	switch plan.Kind {
	case models.StrategySetBased:
		if _, err := e.collection(ctx, plan.SourceCollectionID, "source"); err != nil {
			return nil, err
		}
		if requested, err = e.store.CountMembers(ctx, plan.SourceCollectionID); err != nil {
			return nil, fmt.Errorf("failed to count source members: %w", err)
		}
		if existing, err = e.store.CountOverlap(ctx, plan.SourceCollectionID, collectionID); err != nil {
			return nil, fmt.Errorf("failed to count overlap: %w", err)
		}
	default:
		requested = len(plan.IDs)
		if existing, err = e.store.CountExistingMembers(ctx, collectionID, plan.IDs); err != nil {
			return nil, fmt.Errorf("failed to count existing members: %w", err)
		}
	}

	fresh := requested - existing
	d := e.project(plan.Kind, tuning, fresh)
	return &models.DryRunEstimate{
		EstimatedNewCompanies: fresh,
		AlreadyExisting:       existing,
		EstimatedTime:         FormatEstimate(d),
		Strategy:              plan.Kind,
		EstimatedDuration:     d,
	}, nil
}

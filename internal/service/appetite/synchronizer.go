package appetite

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

// RecordObservation is the synchronizer entry point, called by the
// observation write path after every new measurement. The observation
// insert and the latest-value cache refresh commit as one transaction; the
// scoped re-evaluation that follows takes the same per-organization lock as
// a full sweep.
func (s *service) RecordObservation(ctx context.Context, input RecordObservationInput) (*kri.Observation, error) {
	def, err := s.kris.GetByID(ctx, input.KRIID)
	if err != nil {
		return nil, err
	}
	if !def.Enabled {
		return nil, domainerrors.ErrKRIDisabled
	}

	obs, err := kri.NewObservation(input.KRIID, input.Value, input.MeasuredAt, input.Notes)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_OBSERVATION", err.Error())
	}

	affected, err := s.recorder.RecordObservation(ctx, obs)
	if err != nil {
		return nil, domainerrors.Wrap(err, "recording observation")
	}

	if len(affected) == 0 {
		return obs, nil
	}

	// Group affected limits by organization: the lock is per-organization
	// and a KRI may be referenced across organizations.
	limits, err := s.tolerances.ListByIDs(ctx, affected)
	if err != nil {
		// The observation is committed; the next scheduled sweep will
		// pick it up.
		s.logger.Warn("could not load affected tolerance limits, deferring to next sweep",
			zap.String("kri_id", input.KRIID.String()),
			zap.Error(err))
		return obs, nil
	}

	byOrg := make(map[uuid.UUID][]uuid.UUID)
	for _, limit := range limits {
		byOrg[limit.OrganizationID] = append(byOrg[limit.OrganizationID], limit.ID)
	}

	for orgID, ids := range byOrg {
		if _, err := s.RecalculateTolerances(ctx, orgID, ids); err != nil {
			if domainerrors.IsContention(err) {
				// A sweep is already running for this organization; it
				// or the next scheduled run will see the new value.
				s.logger.Info("scoped recalculation deferred, sweep in progress",
					zap.String("organization_id", orgID.String()))
				continue
			}
			s.logger.Error("scoped recalculation failed",
				zap.String("organization_id", orgID.String()),
				zap.String("kri_id", input.KRIID.String()),
				zap.Error(err))
		}
	}

	return obs, nil
}

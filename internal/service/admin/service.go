package admin

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/control"
	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

type service struct {
	kris       KRIStore
	tolerances ToleranceStore
	dimes      DIMEStore
	badges     BadgeInvalidator
	logger     *zap.Logger
}

// NewService creates the configuration service. badges may be nil.
func NewService(kris KRIStore, tolerances ToleranceStore, dimes DIMEStore, badges BadgeInvalidator, logger *zap.Logger) Service {
	return &service{
		kris:       kris,
		tolerances: tolerances,
		dimes:      dimes,
		badges:     badges,
		logger:     logger,
	}
}

func (s *service) CreateKRI(ctx context.Context, input CreateKRIInput) (*kri.Definition, error) {
	frequency, err := kri.ParseFrequency(input.Frequency)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_FREQUENCY", err.Error())
	}

	def, err := kri.NewDefinition(input.OrganizationID, input.Code, input.Name, input.Unit,
		frequency, input.AmberThreshold, input.RedThreshold)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_KRI", err.Error())
	}

	if err := s.kris.Create(ctx, def); err != nil {
		return nil, err
	}

	s.logger.Info("KRI definition created",
		zap.String("kri_id", def.ID.String()),
		zap.String("code", def.Code),
		zap.String("organization_id", def.OrganizationID.String()))

	return def, nil
}

// SetKRIEnabled flips the soft-delete flag. Disabling drops the cached
// badges of every enabled limit that evaluates through this KRI, since
// their next evaluation will degrade once the cached value ages out.
func (s *service) SetKRIEnabled(ctx context.Context, kriID uuid.UUID, enabled bool) error {
	if err := s.kris.SetEnabled(ctx, kriID, enabled); err != nil {
		return err
	}

	if enabled {
		return nil
	}

	limits, err := s.tolerances.ListEnabledByPrimaryKRI(ctx, kriID)
	if err != nil {
		s.logger.Warn("could not list limits referencing disabled KRI",
			zap.String("kri_id", kriID.String()),
			zap.Error(err))
		return nil
	}

	for _, limit := range limits {
		if s.badges != nil {
			if err := s.badges.Invalidate(ctx, limit.ID); err != nil {
				s.logger.Warn("badge invalidation failed",
					zap.String("tolerance_id", limit.ID.String()),
					zap.Error(err))
			}
		}
	}

	s.logger.Info("KRI definition disabled",
		zap.String("kri_id", kriID.String()),
		zap.Int("referencing_limits", len(limits)))

	return nil
}

func (s *service) ListObservations(ctx context.Context, kriID uuid.UUID, limit int) ([]*kri.Observation, error) {
	if _, err := s.kris.GetByID(ctx, kriID); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 100
	}
	return s.kris.ListObservations(ctx, kriID, limit)
}

func (s *service) CreateTolerance(ctx context.Context, input CreateToleranceInput) (*appetite.ToleranceLimit, error) {
	direction, err := appetite.ParseDirection(input.Direction)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_DIRECTION", err.Error())
	}

	var limit *appetite.ToleranceLimit
	if direction == appetite.DirectionOutside {
		if input.Target == nil {
			return nil, domainerrors.NewValidationError("INVALID_TOLERANCE", "direction outside requires a target value")
		}
		limit, err = appetite.NewOutsideToleranceLimit(input.OrganizationID, input.StatementID,
			input.MetricName, input.Unit, *input.Target, input.SoftLimit, input.HardLimit)
	} else {
		limit, err = appetite.NewToleranceLimit(input.OrganizationID, input.StatementID,
			input.MetricName, input.Unit, direction, input.SoftLimit, input.HardLimit)
	}
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_TOLERANCE", err.Error())
	}

	if input.PrimaryKRIID != nil {
		if err := limit.LinkPrimaryKRI(*input.PrimaryKRIID); err != nil {
			return nil, domainerrors.NewValidationError("INVALID_KRI_REFERENCE", err.Error())
		}
	}

	if err := s.tolerances.Create(ctx, limit); err != nil {
		return nil, err
	}

	s.logger.Info("tolerance limit created",
		zap.String("tolerance_id", limit.ID.String()),
		zap.String("metric", limit.MetricName),
		zap.String("direction", limit.Direction.String()))

	return limit, nil
}

func (s *service) ScoreControl(ctx context.Context, input ScoreControlInput) (*control.DIMEScore, error) {
	score, err := control.NewDIMEScore(input.OrganizationID, input.ControlID,
		input.Design, input.Implementation, input.Monitoring, input.Effectiveness)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_DIME_SCORE", err.Error())
	}

	if err := s.dimes.Upsert(ctx, score); err != nil {
		return nil, err
	}

	return score, nil
}

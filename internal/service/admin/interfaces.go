package admin

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/control"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

// Service covers administrator-driven configuration: KRI definitions,
// tolerance limits and control scores. Evaluation never goes through here.
type Service interface {
	CreateKRI(ctx context.Context, input CreateKRIInput) (*kri.Definition, error)
	SetKRIEnabled(ctx context.Context, kriID uuid.UUID, enabled bool) error
	ListObservations(ctx context.Context, kriID uuid.UUID, limit int) ([]*kri.Observation, error)

	CreateTolerance(ctx context.Context, input CreateToleranceInput) (*appetite.ToleranceLimit, error)

	ScoreControl(ctx context.Context, input ScoreControlInput) (*control.DIMEScore, error)
}

// CreateKRIInput carries a new KRI definition.
type CreateKRIInput struct {
	OrganizationID uuid.UUID
	Code           string
	Name           string
	Unit           string
	Frequency      string
	AmberThreshold decimal.Decimal
	RedThreshold   decimal.Decimal
}

// CreateToleranceInput carries a new tolerance limit.
type CreateToleranceInput struct {
	OrganizationID uuid.UUID
	StatementID    uuid.UUID
	MetricName     string
	Unit           string
	Direction      string
	SoftLimit      decimal.Decimal
	HardLimit      decimal.Decimal
	Target         *decimal.Decimal
	PrimaryKRIID   *uuid.UUID
}

// ScoreControlInput carries a control's DIME rating.
type ScoreControlInput struct {
	OrganizationID uuid.UUID
	ControlID      uuid.UUID
	Design         int
	Implementation int
	Monitoring     int
	Effectiveness  int
}

// KRIStore is the KRI persistence the admin service needs.
type KRIStore interface {
	Create(ctx context.Context, d *kri.Definition) error
	GetByID(ctx context.Context, id uuid.UUID) (*kri.Definition, error)
	SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	ListObservations(ctx context.Context, kriID uuid.UUID, limit int) ([]*kri.Observation, error)
}

// ToleranceStore is the tolerance persistence the admin service needs.
type ToleranceStore interface {
	Create(ctx context.Context, t *appetite.ToleranceLimit) error
	ListEnabledByPrimaryKRI(ctx context.Context, kriID uuid.UUID) ([]*appetite.ToleranceLimit, error)
}

// DIMEStore persists control scores.
type DIMEStore interface {
	Upsert(ctx context.Context, s *control.DIMEScore) error
}

// BadgeInvalidator drops cached badges when configuration changes make them
// stale; a nil invalidator disables this.
type BadgeInvalidator interface {
	Invalidate(ctx context.Context, toleranceID uuid.UUID) error
}

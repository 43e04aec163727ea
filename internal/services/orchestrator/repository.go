package orchestrator

import (
	"context"

	"qosflow-go/internal/models"
)

// PolicyRepository looks up QoS policies. Persistence lives outside the
// core; implementations are injected.
type PolicyRepository interface {
	GetPolicy(ctx context.Context, id string) (*models.QoSPolicy, error)
	ListPolicies(ctx context.Context) ([]models.QoSPolicy, error)
}

// DeviceRepository looks up network devices and their interfaces.
type DeviceRepository interface {
	GetDevice(ctx context.Context, id string) (*models.NetworkDevice, error)
	ListDevices(ctx context.Context) ([]models.NetworkDevice, error)
}

// AssociationRepository manages interface-to-policy bindings. GetActive
// returns nil without error when no active association exists.
type AssociationRepository interface {
	GetActive(ctx context.Context, interfaceName, direction string) (*models.InterfaceQoSPolicy, error)
	Save(ctx context.Context, assoc *models.InterfaceQoSPolicy) error
	Deactivate(ctx context.Context, id string) error
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"qosflow-go/internal/models"
)

type PostgreSQL struct {
	db *sql.DB
}

type Config struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Name               string `yaml:"name"`
	User               string `yaml:"user"`
	Password           string `yaml:"password"`
	SSLMode            string `yaml:"sslmode"`
	MaxConnections     int    `yaml:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections"`
}

func NewPostgreSQL(cfg Config) (*PostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgreSQL{db: db}, nil
}

func (p *PostgreSQL) Close() error {
	return p.db.Close()
}

// GetDB returns the underlying database connection
func (p *PostgreSQL) GetDB() *sql.DB {
	return p.db
}

// ================ POLICIES ================

// GetPolicy loads a policy with its traffic classes and classifiers.
// Returns nil without error when the policy does not exist.
func (p *PostgreSQL) GetPolicy(ctx context.Context, id string) (*models.QoSPolicy, error) {
	var policy models.QoSPolicy
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, bandwidth_limit, priority, is_active
		FROM qos_policies
		WHERE id = $1`, id).Scan(
		&policy.ID, &policy.Name, &policy.BandwidthLimit, &policy.Priority, &policy.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch policy: %w", err)
	}

	classes, err := p.loadTrafficClasses(ctx, policy.ID)
	if err != nil {
		return nil, err
	}
	policy.TrafficClasses = classes
	return &policy, nil
}

// ListPolicies returns all stored policies with their classes.
func (p *PostgreSQL) ListPolicies(ctx context.Context) ([]models.QoSPolicy, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, bandwidth_limit, priority, is_active
		FROM qos_policies
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	defer rows.Close()

	var policies []models.QoSPolicy
	for rows.Next() {
		var policy models.QoSPolicy
		err := rows.Scan(&policy.ID, &policy.Name, &policy.BandwidthLimit,
			&policy.Priority, &policy.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range policies {
		classes, err := p.loadTrafficClasses(ctx, policies[i].ID)
		if err != nil {
			return nil, err
		}
		policies[i].TrafficClasses = classes
	}
	return policies, nil
}

// CreatePolicy stores a policy with its classes and classifiers in one
// transaction. A missing ID is generated.
func (p *PostgreSQL) CreatePolicy(ctx context.Context, policy *models.QoSPolicy) error {
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO qos_policies (id, name, bandwidth_limit, priority, is_active)
		VALUES ($1, $2, $3, $4, $5)`,
		policy.ID, policy.Name, policy.BandwidthLimit, policy.Priority, policy.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert policy: %w", err)
	}

	for _, class := range policy.TrafficClasses {
		classID := uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO traffic_classes (id, policy_id, name, priority, min_bandwidth, max_bandwidth, dscp, burst)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			classID, policy.ID, class.Name, class.Priority,
			class.MinBandwidth, class.MaxBandwidth, class.DSCP, class.Burst)
		if err != nil {
			return fmt.Errorf("failed to insert traffic class %s: %w", class.Name, err)
		}

		for _, cl := range class.Classifiers {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO traffic_classifiers
					(id, class_id, protocol, source_ip, destination_ip,
					 source_port_start, source_port_end, destination_port_start, destination_port_end,
					 dscp_marking, vlan)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				uuid.New().String(), classID, cl.Protocol, cl.SourceIP, cl.DestinationIP,
				cl.SourcePortStart, cl.SourcePortEnd, cl.DestinationPortStart, cl.DestinationPortEnd,
				cl.DSCPMarking, cl.VLAN)
			if err != nil {
				return fmt.Errorf("failed to insert classifier for class %s: %w", class.Name, err)
			}
		}
	}

	logrus.Infof("Policy created: %s (%s)", policy.Name, policy.ID)
	return tx.Commit()
}

// DeletePolicy removes a policy; classes and classifiers cascade.
func (p *PostgreSQL) DeletePolicy(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM qos_policies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("policy not found: %s", id)
	}
	return nil
}

func (p *PostgreSQL) loadTrafficClasses(ctx context.Context, policyID string) ([]models.TrafficClass, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, priority, min_bandwidth, max_bandwidth, dscp, burst
		FROM traffic_classes
		WHERE policy_id = $1
		ORDER BY priority DESC, name`, policyID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch traffic classes: %w", err)
	}
	defer rows.Close()

	type classRow struct {
		id    string
		class models.TrafficClass
	}
	var classRows []classRow
	for rows.Next() {
		var cr classRow
		err := rows.Scan(&cr.id, &cr.class.Name, &cr.class.Priority,
			&cr.class.MinBandwidth, &cr.class.MaxBandwidth, &cr.class.DSCP, &cr.class.Burst)
		if err != nil {
			return nil, fmt.Errorf("failed to scan traffic class: %w", err)
		}
		classRows = append(classRows, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	classes := make([]models.TrafficClass, 0, len(classRows))
	for _, cr := range classRows {
		classifiers, err := p.loadClassifiers(ctx, cr.id)
		if err != nil {
			return nil, err
		}
		cr.class.Classifiers = classifiers
		classes = append(classes, cr.class)
	}
	return classes, nil
}

func (p *PostgreSQL) loadClassifiers(ctx context.Context, classID string) ([]models.TrafficClassifier, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT protocol, source_ip, destination_ip,
			source_port_start, source_port_end, destination_port_start, destination_port_end,
			dscp_marking, vlan
		FROM traffic_classifiers
		WHERE class_id = $1`, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch classifiers: %w", err)
	}
	defer rows.Close()

	var classifiers []models.TrafficClassifier
	for rows.Next() {
		var cl models.TrafficClassifier
		err := rows.Scan(&cl.Protocol, &cl.SourceIP, &cl.DestinationIP,
			&cl.SourcePortStart, &cl.SourcePortEnd,
			&cl.DestinationPortStart, &cl.DestinationPortEnd,
			&cl.DSCPMarking, &cl.VLAN)
		if err != nil {
			return nil, fmt.Errorf("failed to scan classifier: %w", err)
		}
		classifiers = append(classifiers, cl)
	}
	return classifiers, rows.Err()
}

// ================ DEVICES ================

// GetDevice returns nil without error when the device does not exist.
func (p *PostgreSQL) GetDevice(ctx context.Context, id string) (*models.NetworkDevice, error) {
	var device models.NetworkDevice
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, vendor, address, interfaces, capabilities
		FROM network_devices
		WHERE id = $1`, id).Scan(
		&device.ID, &device.Name, &device.Vendor, &device.Address,
		pq.Array(&device.Interfaces), pq.Array(&device.Capabilities))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch device: %w", err)
	}
	return &device, nil
}

func (p *PostgreSQL) ListDevices(ctx context.Context) ([]models.NetworkDevice, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, vendor, address, interfaces, capabilities
		FROM network_devices
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []models.NetworkDevice
	for rows.Next() {
		var device models.NetworkDevice
		err := rows.Scan(&device.ID, &device.Name, &device.Vendor, &device.Address,
			pq.Array(&device.Interfaces), pq.Array(&device.Capabilities))
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (p *PostgreSQL) CreateDevice(ctx context.Context, device *models.NetworkDevice) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO network_devices (id, name, vendor, address, interfaces, capabilities)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		device.ID, device.Name, device.Vendor, device.Address,
		pq.Array(device.Interfaces), pq.Array(device.Capabilities))
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}
	logrus.Infof("Device created: %s (%s)", device.Name, device.ID)
	return nil
}

// ================ INTERFACE ASSOCIATIONS ================

// GetActive returns the active policy association of an interface, or nil
// when none exists.
func (p *PostgreSQL) GetActive(ctx context.Context, interfaceName, direction string) (*models.InterfaceQoSPolicy, error) {
	var assoc models.InterfaceQoSPolicy
	err := p.db.QueryRowContext(ctx, `
		SELECT id, interface_name, policy_id, direction, is_active
		FROM interface_qos_policies
		WHERE interface_name = $1 AND direction = $2 AND is_active = TRUE`,
		interfaceName, direction).Scan(
		&assoc.ID, &assoc.InterfaceName, &assoc.PolicyID, &assoc.Direction, &assoc.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch association: %w", err)
	}
	return &assoc, nil
}

func (p *PostgreSQL) Save(ctx context.Context, assoc *models.InterfaceQoSPolicy) error {
	if assoc.ID == "" {
		assoc.ID = uuid.New().String()
	}
	result, err := p.db.ExecContext(ctx, `
		INSERT INTO interface_qos_policies (id, interface_name, policy_id, direction, is_active)
		VALUES ($1, $2, $3, $4, $5)`,
		assoc.ID, assoc.InterfaceName, assoc.PolicyID, assoc.Direction, assoc.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save association: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", rowsAffected)
	}
	return nil
}

func (p *PostgreSQL) Deactivate(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE interface_qos_policies SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate association: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return fmt.Errorf("expected 1 row affected, got %d", rowsAffected)
	}
	return nil
}

// ================ STATISTICS ================

// GetPolicyStats returns aggregate counts for the status endpoint.
func (p *PostgreSQL) GetPolicyStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var policyCount, activeCount int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM qos_policies`).
		Scan(&policyCount, &activeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get policy counts: %w", err)
	}
	stats["policies"] = policyCount
	stats["active_policies"] = activeCount

	var deviceCount int
	err = p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM network_devices`).Scan(&deviceCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get device count: %w", err)
	}
	stats["devices"] = deviceCount

	var associationCount int
	err = p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM interface_qos_policies WHERE is_active`).Scan(&associationCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get association count: %w", err)
	}
	stats["active_associations"] = associationCount

	return stats, nil
}

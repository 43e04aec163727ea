package models

import "fmt"

// ValidationError reports a malformed policy or violated bandwidth invariant.
// Raised before any device mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// LowLatencyValidationError reports a violated LLQ constraint: the strict
// priority queues may not reserve more than a third of the interface
// bandwidth, and standard classes must fit into what remains.
type LowLatencyValidationError struct {
	Reason string
}

func (e *LowLatencyValidationError) Error() string {
	return fmt.Sprintf("low latency validation failed: %s", e.Reason)
}

// DeviceNotFoundError reports a missing device in the device repository.
type DeviceNotFoundError struct {
	DeviceID string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("device not found: %s", e.DeviceID)
}

// InterfaceNotFoundError reports an interface the device does not own.
type InterfaceNotFoundError struct {
	DeviceID      string
	InterfaceName string
}

func (e *InterfaceNotFoundError) Error() string {
	return fmt.Sprintf("interface %s not found on device %s", e.InterfaceName, e.DeviceID)
}

// UnsupportedDeviceError reports a device lacking a required capability.
type UnsupportedDeviceError struct {
	DeviceID   string
	Capability string
}

func (e *UnsupportedDeviceError) Error() string {
	return fmt.Sprintf("device %s does not support %s", e.DeviceID, e.Capability)
}

// ConfigurationExecutionError reports a failed adapter or controller call.
type ConfigurationExecutionError struct {
	Target string
	Output string
	Err    error
}

func (e *ConfigurationExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration failed on %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("configuration failed on %s: %s", e.Target, e.Output)
}

func (e *ConfigurationExecutionError) Unwrap() error {
	return e.Err
}

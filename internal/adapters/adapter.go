package adapters

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"qosflow-go/internal/models"
)

// Vendor identifiers accepted by ForVendor
const (
	VendorCisco   = "cisco"
	VendorJuniper = "juniper"
	VendorLinux   = "linux"
)

// Adapter translates computed queue configurations into an ordered list of
// device commands. Adapters are pure generators and never talk to a device.
type Adapter interface {
	Vendor() string
	Generate(interfaceName, policyName, direction string, configs []models.QueueConfiguration) ([]string, error)
}

// CommandExecutor pushes a generated command list to a device. Execution is
// blocking I/O; implementations must honor the context deadline.
type CommandExecutor interface {
	Execute(ctx context.Context, device *models.NetworkDevice, commands []string) (bool, string, error)
}

// ForVendor returns the adapter for a device vendor string.
func ForVendor(vendor string) (Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(vendor)) {
	case VendorCisco, "cisco-ios", "ios":
		return &CiscoAdapter{}, nil
	case VendorJuniper, "junos":
		return &JuniperAdapter{}, nil
	case VendorLinux, "linux-tc", "tc":
		return &LinuxTCAdapter{}, nil
	default:
		return nil, fmt.Errorf("no adapter for vendor %q", vendor)
	}
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// sanitizeName converts a free-form class or policy name into a token safe
// for vendor CLIs.
func sanitizeName(name string) string {
	clean := nameSanitizer.ReplaceAllString(strings.TrimSpace(name), "_")
	clean = strings.Trim(clean, "_")
	if clean == "" {
		return "unnamed"
	}
	return clean
}

// commandBuilder accumulates CLI lines.
type commandBuilder struct {
	commands []string
}

func (b *commandBuilder) add(format string, args ...interface{}) {
	b.commands = append(b.commands, fmt.Sprintf(format, args...))
}

func validateGenerateInput(interfaceName, policyName string, configs []models.QueueConfiguration) error {
	if strings.TrimSpace(interfaceName) == "" {
		return fmt.Errorf("interface name is required")
	}
	if strings.TrimSpace(policyName) == "" {
		return fmt.Errorf("policy name is required")
	}
	if len(configs) == 0 {
		return fmt.Errorf("no queue configurations to translate")
	}
	return nil
}

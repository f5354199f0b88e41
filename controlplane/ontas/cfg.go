package ontas

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zoomcap/zoomcap-p4/common/go/logging"
	"github.com/zoomcap/zoomcap-p4/controlplane/p4rt"
)

type Config config
type config struct {
	// Logging configuration.
	Logging logging.Config `yaml:"logging"`
	// Endpoint is the runtime gRPC address of the switch.
	Endpoint string `yaml:"endpoint"`
	// Program is the path of the P4 main program. Only its base name
	// matters: it must match the name of the pipeline running on the
	// device.
	Program string `yaml:"program"`
	// P4InfoPath, when set, is pushed to the device together with
	// DeviceConfigPath before binding.
	P4InfoPath string `yaml:"p4info"`
	// DeviceConfigPath is the target-specific binary of the program.
	DeviceConfigPath string `yaml:"device_config"`
	// DeviceID is the device to program.
	DeviceID uint64 `yaml:"device_id"`
	// ClientID identifies this client, it is also used as election id.
	ClientID uint64 `yaml:"client_id"`
	// Timeout bounds connecting and arbitration.
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging:  logging.DefaultConfig(),
		Endpoint: "localhost:50052",
		Program:  "src/zoom_capture_anony.p4",
		DeviceID: p4rt.DeviceID,
		ClientID: p4rt.DefaultClientID,
		Timeout:  10 * time.Second,
	}
}

// LoadConfig loads the configuration from the given path.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(buf, cfg); err != nil {
		return nil, fmt.Errorf("failed to deserialize config: %w", err)
	}

	return cfg, nil
}

// UnmarshalYAML serves as a proxy for validation.
//
// To avoid infinite recursion, the validating wrapper casts itself to the
// private config struct.
func (m *Config) UnmarshalYAML(value *yaml.Node) error {
	if err := value.Decode((*config)(m)); err != nil {
		return err
	}
	return m.Validate()
}

// Validate validates the provisioner configuration.
func (m *Config) Validate() error {
	if m.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if m.Program == "" {
		return fmt.Errorf("program is required")
	}
	if m.ClientID == 0 {
		return fmt.Errorf("client_id must be positive")
	}
	if m.DeviceConfigPath != "" && m.P4InfoPath == "" {
		return fmt.Errorf("device_config requires p4info")
	}
	return nil
}

// ProgramName returns the pipeline name, which is the base name of the
// program without extension.
func (m *Config) ProgramName() string {
	base := filepath.Base(m.Program)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

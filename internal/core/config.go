package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commands"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/backend/commandstructure"
	"github.com/0xrupamp26/BasetiveDiwaliBonus/internal/chain"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// CommandConfig represents a generic command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type ChainConfig struct {
	RPCURL                string        `yaml:"rpcUrl"`
	ChainID               int64         `yaml:"chainId"`
	ContractAddress       string        `yaml:"contractAddress"`
	TokenAddress          string        `yaml:"tokenAddress"`
	OperatorKey           string        `yaml:"operatorKey"`
	BlockExplorerURL      string        `yaml:"blockExplorerUrl"`
	OracleFee             string        `yaml:"oracleFee"`
	GasBufferPercent      int           `yaml:"gasBufferPercent"`
	Confirmations         uint64        `yaml:"confirmations"`
	GalleryLookbackBlocks uint64        `yaml:"galleryLookbackBlocks"`
	PollInterval          time.Duration `yaml:"pollInterval"`
	PollWindowBlocks      uint64        `yaml:"pollWindowBlocks"`
}

type IPFSConfig struct {
	Gateway        string        `yaml:"gateway"`
	PinataEndpoint string        `yaml:"pinataEndpoint"`
	APIKey         string        `yaml:"apiKey"`
	SecretKey      string        `yaml:"secretKey"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryMax       int           `yaml:"retryMax"`
}

type ScoringConfig struct {
	Type              string        `yaml:"type"`
	APIKey            string        `yaml:"apiKey"`
	Model             string        `yaml:"model"`
	MinScoreThreshold int           `yaml:"minScoreThreshold"`
	PollAttempts      int           `yaml:"pollAttempts"`
	PollInterval      time.Duration `yaml:"pollInterval"`
}

type ImagesConfig struct {
	MaxSizeMB int             `yaml:"maxSizeMB"`
	MaxWidth  int             `yaml:"maxWidth"`
	MaxHeight int             `yaml:"maxHeight"`
	Quality   int             `yaml:"quality"`
	Commands  []CommandConfig `yaml:"commands"`
}

type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"maxRequests"`
}

type GalleryConfig struct {
	ItemsPerPage int `yaml:"itemsPerPage"`
}

type Features struct {
	EnableLikes    bool `yaml:"enableLikes"`
	EnableCheers   bool `yaml:"enableCheers"`
	EnableComments bool `yaml:"enableComments"`
}

type NotificationsConfig struct {
	DiscordWebhookURL string `yaml:"discordWebhookUrl"`
}

type AdminConfig struct {
	// TokenHash is a bcrypt hash of the admin bearer token.
	TokenHash string `yaml:"tokenHash"`
}

type ServiceConfig struct {
	Port          int                 `yaml:"port"`
	LogLevel      string              `yaml:"logLevel"`
	Database      Database            `yaml:"database"`
	Social        Database            `yaml:"social"`
	Chain         ChainConfig         `yaml:"chain"`
	IPFS          IPFSConfig          `yaml:"ipfs"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Images        ImagesConfig        `yaml:"images"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Gallery       GalleryConfig       `yaml:"gallery"`
	Features      Features            `yaml:"features"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Admin         AdminConfig         `yaml:"admin"`
}

// WAL plus a busy timeout lets the index and the social store share one file.
const defaultSQLiteDSN = "file:diwali.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// DefaultConfig returns the Base Sepolia defaults. LoadConfig overlays the
// YAML file on top of it.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:     8080,
		LogLevel: "info",
		Database: Database{Type: "sqlite", ConnectionString: defaultSQLiteDSN},
		Social:   Database{Type: "sqlite", ConnectionString: defaultSQLiteDSN},
		Chain: ChainConfig{
			RPCURL:                "https://sepolia.base.org",
			ChainID:               84532,
			BlockExplorerURL:      "https://sepolia.basescan.org",
			OracleFee:             "0.001",
			GasBufferPercent:      20,
			Confirmations:         1,
			GalleryLookbackBlocks: 200000,
			PollInterval:          10 * time.Second,
			PollWindowBlocks:      2000,
		},
		IPFS: IPFSConfig{
			Gateway:        "https://gateway.pinata.cloud/ipfs/",
			PinataEndpoint: "https://api.pinata.cloud/pinning/pinFileToIPFS",
			Timeout:        60 * time.Second,
			RetryMax:       3,
		},
		Scoring: ScoringConfig{
			Type:              "brightness",
			MinScoreThreshold: 6,
			PollAttempts:      30,
			PollInterval:      2 * time.Second,
		},
		Images: ImagesConfig{
			MaxSizeMB: 2,
			MaxWidth:  800,
			MaxHeight: 600,
			Quality:   80,
		},
		RateLimit: RateLimitConfig{Window: 24 * time.Hour, MaxRequests: 1},
		Gallery:   GalleryConfig{ItemsPerPage: 20},
		Features:  Features{EnableLikes: true, EnableCheers: true, EnableComments: true},
	}
}

// LoadConfig loads configuration from the specified YAML file. ${VAR}
// references are expanded from the environment before parsing.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	config, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}
	return config, nil
}

func ParseConfig(data []byte) (*ServiceConfig, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if err := validateCommands(c.Images.Commands); err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}
	if c.Scoring.MinScoreThreshold < 0 || c.Scoring.MinScoreThreshold > 10 {
		return fmt.Errorf("scoring.minScoreThreshold must be within 0..10, got %d", c.Scoring.MinScoreThreshold)
	}
	switch c.Scoring.Type {
	case "brightness":
	case "genai":
		if c.Scoring.APIKey == "" {
			return fmt.Errorf("scoring.apiKey is required for the genai scorer")
		}
	default:
		return fmt.Errorf("unsupported scoring type: %s", c.Scoring.Type)
	}
	if c.Images.Quality < 1 || c.Images.Quality > 100 {
		return fmt.Errorf("images.quality must be within 1..100, got %d", c.Images.Quality)
	}
	if c.Images.MaxSizeMB <= 0 || c.Images.MaxWidth <= 0 || c.Images.MaxHeight <= 0 {
		return fmt.Errorf("images.maxSizeMB, maxWidth and maxHeight must be positive")
	}
	for name, addr := range map[string]string{
		"chain.contractAddress": c.Chain.ContractAddress,
		"chain.tokenAddress":    c.Chain.TokenAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}
	if c.Chain.OperatorKey != "" {
		if _, err := chain.ParsePrivateKey(c.Chain.OperatorKey); err != nil {
			return err
		}
	}
	if c.Chain.GasBufferPercent < 0 {
		return fmt.Errorf("chain.gasBufferPercent must not be negative, got %d", c.Chain.GasBufferPercent)
	}
	if _, err := chain.ParseEther(c.Chain.OracleFee); err != nil {
		return fmt.Errorf("chain.oracleFee: %w", err)
	}
	if c.Gallery.ItemsPerPage <= 0 {
		return fmt.Errorf("gallery.itemsPerPage must be positive")
	}
	if c.RateLimit.MaxRequests < 0 {
		return fmt.Errorf("rateLimit.maxRequests must not be negative")
	}
	return nil
}

// PipelineCommands returns the configured image commands, or the default
// rasterize, fit and jpeg pipeline.
func (c *ServiceConfig) PipelineCommands() []commandstructure.CommandConfig {
	if len(c.Images.Commands) == 0 {
		return commands.DefaultSubmissionPipeline(c.Images.MaxWidth, c.Images.MaxHeight, c.Images.Quality)
	}
	out := make([]commandstructure.CommandConfig, len(c.Images.Commands))
	for i, cmd := range c.Images.Commands {
		out[i] = commandstructure.CommandConfig{Name: cmd.Name, Params: cmd.Params}
	}
	return out
}

// Subscribe reports whether the RPC endpoint supports log subscriptions.
func (c ChainConfig) Subscribe() bool {
	return strings.HasPrefix(c.RPCURL, "ws://") || strings.HasPrefix(c.RPCURL, "wss://")
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command %s, expected one of %v", cmd.Name, commandstructure.DefaultRegistry.GetRegisteredNames())
		}
	}

	return nil
}

package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gigpay/treasuryops/internal/entity"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BackendURL      string
	BackendAPIKey   string
	RPCURL          string
	ChainID         int64
	RegistryAddress common.Address
	TreasuryAddress common.Address
	Assets          map[string]common.Address
	Owner           string
	OperatorKeyEnv  string
	ListenAddr      string
	WALDir          string
	DefaultRange    entity.Range
	CallTimeout     time.Duration
	PollInterval    time.Duration
	SampleInterval  time.Duration
}

type ConfigTmp struct {
	BackendURL      string            `yaml:"backend_url"`
	BackendAPIKey   string            `yaml:"backend_api_key,omitempty"`
	RPCURL          string            `yaml:"rpc_url"`
	ChainID         int64             `yaml:"chain_id"`
	RegistryAddress string            `yaml:"registry_address"`
	TreasuryAddress string            `yaml:"treasury_address"`
	Assets          map[string]string `yaml:"assets"`
	Owner           string            `yaml:"owner,omitempty"`
	OperatorKeyEnv  string            `yaml:"operator_key_env,omitempty"`
	ListenAddr      string            `yaml:"listen_addr,omitempty"`
	WALDir          string            `yaml:"wal_dir,omitempty"`
	DefaultRange    string            `yaml:"default_range,omitempty"`
	CallTimeout     time.Duration     `yaml:"call_timeout,omitempty"`
	PollInterval    time.Duration     `yaml:"poll_interval,omitempty"`
	SampleInterval  time.Duration     `yaml:"sample_interval,omitempty"`
}

func Get() (Config, error) {
	config := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *config != "" {
		return Load(*config)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return Load("config.yaml")
	}

	return Config{}, fmt.Errorf("no config found, pass --config or run setup to generate config.yaml")
}

// Load reads and validates a yaml config at path.
func Load(path string) (Config, error) {
	var tmp ConfigTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	if tmp.RPCURL == "" {
		return Config{}, fmt.Errorf("missing 'rpc_url' param in yaml config")
	}
	if tmp.ChainID <= 0 {
		return Config{}, fmt.Errorf("incorrect 'chain_id' param in yaml config: %d", tmp.ChainID)
	}
	if !common.IsHexAddress(tmp.RegistryAddress) {
		return Config{}, fmt.Errorf("incorrect 'registry_address' param in yaml config: %s", tmp.RegistryAddress)
	}
	if !common.IsHexAddress(tmp.TreasuryAddress) {
		return Config{}, fmt.Errorf("incorrect 'treasury_address' param in yaml config: %s", tmp.TreasuryAddress)
	}
	if len(tmp.Assets) == 0 {
		return Config{}, fmt.Errorf("missing 'assets' param in yaml config, expected symbol to address map")
	}

	assets := make(map[string]common.Address, len(tmp.Assets))
	for symbol, addr := range tmp.Assets {
		if !common.IsHexAddress(addr) {
			return Config{}, fmt.Errorf("incorrect address for asset %s in yaml config: %s", symbol, addr)
		}
		assets[strings.ToUpper(symbol)] = common.HexToAddress(addr)
	}

	cfg := Config{
		BackendURL:      tmp.BackendURL,
		BackendAPIKey:   tmp.BackendAPIKey,
		RPCURL:          tmp.RPCURL,
		ChainID:         tmp.ChainID,
		RegistryAddress: common.HexToAddress(tmp.RegistryAddress),
		TreasuryAddress: common.HexToAddress(tmp.TreasuryAddress),
		Assets:          assets,
		Owner:           tmp.Owner,
		OperatorKeyEnv:  tmp.OperatorKeyEnv,
		ListenAddr:      tmp.ListenAddr,
		WALDir:          tmp.WALDir,
		DefaultRange:    entity.Range(tmp.DefaultRange),
		CallTimeout:     tmp.CallTimeout,
		PollInterval:    tmp.PollInterval,
		SampleInterval:  tmp.SampleInterval,
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.WALDir == "" {
		cfg.WALDir = "treasury_wal"
	}
	if cfg.OperatorKeyEnv == "" {
		cfg.OperatorKeyEnv = "TREASURY_OPERATOR_KEY"
	}
	if cfg.DefaultRange == "" {
		cfg.DefaultRange = entity.Range30d
	}
	if !cfg.DefaultRange.Valid() {
		return Config{}, fmt.Errorf("incorrect 'default_range' param in yaml config: %s", tmp.DefaultRange)
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 6 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.SampleInterval == 0 {
		cfg.SampleInterval = time.Minute
	}

	return cfg, nil
}

package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gigpay/treasuryops/config"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		backendURL    string
		backendAPIKey string
		rpcURL        string
		chainIDStr    string
		registryAddr  string
		treasuryAddr  string
		assetSymbols  []string
		owner         string
		listenAddr    string
		defaultRange  string
		confirm       bool
	)

	// defaults
	chainIDStr = "84532"
	listenAddr = ":8080"
	defaultRange = "30d"

	// step 1: welcome
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("TREASURYOPS CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire up your treasury dashboard.\n"))

	// backend
	fmt.Println(stepStyle.Render("STEP 1: BACKEND API"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend Base URL").
				Description("Primary data source, leave empty to run ledger-only").
				Value(&backendURL),
			huh.NewInput().
				Title("Backend API Key").
				Value(&backendAPIKey).
				EchoMode(huh.EchoModePassword),
		),
	).Run()
	if err != nil {
		return err
	}

	// ledger
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TREASURYOPS CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 2: LEDGER"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("RPC URL").
				Description("JSON-RPC endpoint (e.g. https://sepolia.base.org)").
				Value(&rpcURL).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("rpc url cannot be empty")
					}
					return nil
				}),
			huh.NewInput().
				Title("Chain ID").
				Value(&chainIDStr).
				Validate(func(s string) error {
					id, err := strconv.ParseInt(s, 10, 64)
					if err != nil || id <= 0 {
						return fmt.Errorf("must be a positive integer")
					}
					return nil
				}),
			huh.NewInput().
				Title("Registry Address").
				Description("Protocol registry contract (0x...)").
				Value(&registryAddr).
				Validate(validateAddress),
			huh.NewInput().
				Title("Treasury Vault Address").
				Value(&treasuryAddr).
				Validate(validateAddress),
		),
	).Run()
	if err != nil {
		return err
	}

	// assets
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TREASURYOPS CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: ASSETS"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Tracked Assets").
				Options(
					huh.NewOption("IDRX", "IDRX").Selected(true),
					huh.NewOption("USDC", "USDC").Selected(true),
					huh.NewOption("USDT", "USDT"),
					huh.NewOption("DAI", "DAI"),
					huh.NewOption("EURC", "EURC"),
				).
				Value(&assetSymbols).
				Validate(func(symbols []string) error {
					if len(symbols) == 0 {
						return fmt.Errorf("select at least one asset")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	assets := make(map[string]string, len(assetSymbols))
	for _, symbol := range assetSymbols {
		var addr string
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title(fmt.Sprintf("%s Token Address", symbol)).
					Value(&addr).
					Validate(validateAddress),
			),
		).Run()
		if err != nil {
			return err
		}
		assets[symbol] = addr
	}

	// serving
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TREASURYOPS CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: SERVING"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen Address").
				Value(&listenAddr),
			huh.NewInput().
				Title("Jobs Owner Address").
				Description("Optional, enables the jobs panel").
				Value(&owner).
				Validate(func(s string) error {
					if s != "" {
						return validateAddress(s)
					}
					return nil
				}),
			huh.NewSelect[string]().
				Title("Default History Range").
				Options(
					huh.NewOption("7 days", "7d"),
					huh.NewOption("30 days", "30d"),
					huh.NewOption("90 days", "90d"),
					huh.NewOption("1 year", "1y"),
					huh.NewOption("All time", "all"),
				).
				Value(&defaultRange),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("TREASURYOPS CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Backend: %s\nRPC: %s\nChain ID: %s\nRegistry: %s\nTreasury: %s\nAssets: %d\nListen: %s\nRange: %s\n",
		orDash(backendURL), rpcURL, chainIDStr, registryAddr, treasuryAddr, len(assets), listenAddr, defaultRange,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}

	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	chainID, _ := strconv.ParseInt(chainIDStr, 10, 64)

	cfgTmp := config.ConfigTmp{
		BackendURL:      backendURL,
		BackendAPIKey:   backendAPIKey,
		RPCURL:          rpcURL,
		ChainID:         chainID,
		RegistryAddress: registryAddr,
		TreasuryAddress: treasuryAddr,
		Assets:          assets,
		Owner:           owner,
		ListenAddr:      listenAddr,
		DefaultRange:    defaultRange,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting dashboard...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("must be a hex address (0x followed by 40 hex chars)")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

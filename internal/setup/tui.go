package setup

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/walletsync/config"
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

func header(step string) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("WALLETSYNC CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		chainIDStr      string
		rpcURL          string
		tokenAddress    string
		escrowAddress   string
		decimalsStr     string
		ledgerBaseURL   string
		userID          string
		pollIntervalStr string
		confirm         bool
	)

	// defaults
	chainIDStr = "84532"
	rpcURL = "https://sepolia.base.org"
	decimalsStr = "6"
	pollIntervalStr = "15s"

	header("")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's wire your wallet session layer.\n"))

	// network
	header("STEP 1: NETWORK")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Chain ID").
				Description("Expected network (e.g. 84532 for Base Sepolia)").
				Value(&chainIDStr).
				Validate(validateChainID),
			huh.NewInput().
				Title("RPC Endpoint").
				Description("JSON-RPC URL for the chain above").
				Value(&rpcURL).
				Validate(notEmpty("rpc endpoint")),
		),
	).Run()
	if err != nil {
		return err
	}

	// contracts
	header("STEP 2: CONTRACTS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Token Address").
				Description("ERC-20 token contract (e.g. USDC)").
				Value(&tokenAddress).
				Validate(validateAddress),
			huh.NewInput().
				Title("Escrow Address").
				Description("Escrow contract holding deposits").
				Value(&escrowAddress).
				Validate(validateAddress),
			huh.NewInput().
				Title("Token Decimals").
				Value(&decimalsStr).
				Validate(validateDecimals),
		),
	).Run()
	if err != nil {
		return err
	}

	// ledger
	header("STEP 3: LEDGER")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Ledger Base URL").
				Description("Server-side ledger API (e.g. https://app.example.com)").
				Value(&ledgerBaseURL).
				Validate(notEmpty("ledger base url")),
			huh.NewInput().
				Title("User ID").
				Description("Account identifier on the ledger side").
				Value(&userID).
				Validate(notEmpty("user id")),
		),
	).Run()
	if err != nil {
		return err
	}

	// timing
	header("STEP 4: TIMING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Balance Poll Interval").
				Description("Duration string (e.g. 10s, 15s, 1m)").
				Value(&pollIntervalStr).
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	// confirmation
	header("FINAL CONFIRMATION")

	summary := fmt.Sprintf(
		"Chain: %s\nRPC: %s\nToken: %s\nEscrow: %s\nLedger: %s\nUser: %s\nPoll: %s\n",
		chainIDStr, rpcURL, tokenAddress, escrowAddress, ledgerBaseURL, userID, pollIntervalStr,
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

	chainID, _ := strconv.ParseUint(chainIDStr, 10, 64)
	decimals, _ := strconv.ParseInt(decimalsStr, 10, 32)
	pollInterval, _ := time.ParseDuration(pollIntervalStr)

	cfgTmp := config.ConfigTmp{
		ChainID:       chainID,
		RPCEndpoints:  map[uint64]string{chainID: rpcURL},
		TokenAddress:  tokenAddress,
		EscrowAddress: escrowAddress,
		TokenDecimals: int32(decimals),
		LedgerBaseURL: ledgerBaseURL,
		UserID:        userID,
		PollInterval:  pollInterval,
	}

	data, err := yaml.Marshal(cfgTmp)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}

	filename := "config.gen.yaml"
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nStarting...", filename)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

func validateChainID(s string) error {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateAddress(s string) error {
	if !common.IsHexAddress(s) {
		return fmt.Errorf("must be a 0x-prefixed hex address")
	}
	return nil
}

func validateDecimals(s string) error {
	d, err := strconv.ParseInt(s, 10, 32)
	if err != nil || d <= 0 || d > 18 {
		return fmt.Errorf("must be between 1 and 18")
	}
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

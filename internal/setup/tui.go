// Package setup is the interactive wizard that writes a config file.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/tribeca/config"
	"github.com/vadiminshakov/tribeca/internal/domain"
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

const title = "TRIBECA CONFIG WIZARD"

// Answers collected by the wizard.
type Answers struct {
	Exchange      string
	Pair          string
	Mode          string
	WebListenAddr string
	WALDir        string
	KafkaBrokers  string
	StartActive   bool

	QuotingMode string
	Width       string
	Size        string
	TargetBase  string
}

// DefaultAnswers pre-filled wizard values.
func DefaultAnswers() Answers {
	p := domain.DefaultQuotingParameters()
	return Answers{
		Exchange:      "null",
		Pair:          "BTC/USDT",
		Mode:          config.ModeDev,
		WebListenAddr: ":3000",
		WALDir:        "data",
		QuotingMode:   strconv.Itoa(int(p.Mode)),
		Width:         decimal.NewFromFloat(p.Width).String(),
		Size:          decimal.NewFromFloat(p.Size).String(),
		TargetBase:    decimal.NewFromFloat(p.TargetBasePosition).String(),
	}
}

type fileQuoting struct {
	Mode               int     `yaml:"mode"`
	Width              float64 `yaml:"width"`
	Size               float64 `yaml:"size"`
	TargetBasePosition float64 `yaml:"target_base_position"`
}

type file struct {
	Mode          string       `yaml:"TRIBECA_MODE"`
	Exchange      string       `yaml:"EXCHANGE"`
	Pair          string       `yaml:"TRADED_PAIR"`
	WebListenAddr string       `yaml:"WEB_LISTEN_ADDR"`
	WALDir        string       `yaml:"WAL_DIR"`
	StartActive   bool         `yaml:"START_ACTIVE"`
	KafkaBrokers  []string     `yaml:"KAFKA_BROKERS,omitempty"`
	Quoting       *fileQuoting `yaml:"quoting"`
}

// YAML renders the answers as a config file.
func (a Answers) YAML() ([]byte, error) {
	mode, err := strconv.Atoi(a.QuotingMode)
	if err != nil {
		return nil, errors.Wrap(err, "quoting mode")
	}
	q := &fileQuoting{Mode: mode}
	for _, f := range []struct {
		name string
		src  string
		dst  *float64
	}{
		{"width", a.Width, &q.Width},
		{"size", a.Size, &q.Size},
		{"target base position", a.TargetBase, &q.TargetBasePosition},
	} {
		d, err := decimal.NewFromString(strings.TrimSpace(f.src))
		if err != nil {
			return nil, errors.Wrapf(err, "%s must be a number", f.name)
		}
		*f.dst = d.InexactFloat64()
	}

	out := file{
		Mode:          a.Mode,
		Exchange:      a.Exchange,
		Pair:          a.Pair,
		WebListenAddr: a.WebListenAddr,
		WALDir:        a.WALDir,
		StartActive:   a.StartActive,
		Quoting:       q,
	}
	for _, b := range strings.Split(a.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out.KafkaBrokers = append(out.KafkaBrokers, b)
		}
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate yaml")
	}
	return data, nil
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the result to path.
func RunTUI(path string) error {
	a := DefaultAnswers()
	var confirm bool

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render(title))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's get your market maker quoting.\n"))

	fmt.Println(stepStyle.Render("STEP 1: VENUE"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select exchange").
				Options(
					huh.NewOption("Simulation (null gateway)", "null"),
					huh.NewOption("Binance", "binance"),
					huh.NewOption("Bybit (paper trading on live prices)", "bybit"),
				).
				Value(&a.Exchange),
			huh.NewInput().
				Title("Trading pair").
				Description("BASE/QUOTE (e.g. BTC/USDT)").
				Value(&a.Pair).
				Validate(func(s string) error {
					_, err := domain.ParseCurrencyPair(s)
					return err
				}),
			huh.NewSelect[string]().
				Title("Environment").
				Options(
					huh.NewOption("Development", config.ModeDev),
					huh.NewOption("Production", config.ModeProd),
				).
				Value(&a.Mode),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: QUOTING")
	modes := make([]huh.Option[string], 0, 7)
	for m := domain.QuotingModeTop; m <= domain.QuotingModeDepth; m++ {
		modes = append(modes, huh.NewOption(m.String(), strconv.Itoa(int(m))))
	}
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Quoting mode").
				Options(modes...).
				Value(&a.QuotingMode),
			huh.NewInput().
				Title("Width").
				Description("Distance from fair value in quote currency").
				Value(&a.Width).
				Validate(validatePositive),
			huh.NewInput().
				Title("Size").
				Description("Order size in base currency").
				Value(&a.Size).
				Validate(validatePositive),
			huh.NewInput().
				Title("Target base position").
				Value(&a.TargetBase).
				Validate(validatePositive),
			huh.NewConfirm().
				Title("Start quoting immediately?").
				Value(&a.StartActive),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: INFRASTRUCTURE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Web listen address").
				Value(&a.WebListenAddr),
			huh.NewInput().
				Title("Data directory").
				Description("Write-ahead log of orders, trades and settings").
				Value(&a.WALDir),
			huh.NewInput().
				Title("Kafka brokers").
				Description("Comma separated, leave empty to disable").
				Value(&a.KafkaBrokers),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	summary := fmt.Sprintf(
		"Exchange: %s\nPair: %s\nEnvironment: %s\nWidth: %s\nSize: %s\n",
		a.Exchange, a.Pair, a.Mode, a.Width, a.Size,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save and start").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return errors.New("setup cancelled by user")
	}

	data, err := a.YAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s\nStarting bot...", path)))
	time.Sleep(1500 * time.Millisecond)
	return nil
}

func validatePositive(s string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return errors.New("must be a valid number")
	}
	if !d.IsPositive() {
		return errors.New("must be greater than zero")
	}
	return nil
}

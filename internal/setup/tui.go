package setup

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/hotdog/config"
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

// ErrCancelled is returned when the user declines to save.
var ErrCancelled = errors.New("setup cancelled by user")

// answers holds the raw wizard inputs.
type answers struct {
	listen         string
	dogImage       string
	rpcURL         string
	chainID        string
	requestTimeout string
	sessionTTL     string
	journalDir     string
	tlsDomains     string
	certCache      string
	logLevel       string
}

func answersFrom(cfg config.Config) answers {
	a := answers{
		listen:     cfg.Listen,
		dogImage:   cfg.DogImage,
		rpcURL:     cfg.RPCURL,
		sessionTTL: cfg.SessionTTL.String(),
		journalDir: cfg.JournalDir,
		tlsDomains: strings.Join(cfg.TLSDomains, ","),
		certCache:  cfg.CertCache,
		logLevel:   cfg.LogLevel,
	}
	if cfg.ChainID != 0 {
		a.chainID = strconv.FormatUint(cfg.ChainID, 10)
	}
	if cfg.RequestTimeout != 0 {
		a.requestTimeout = cfg.RequestTimeout.String()
	}
	return a
}

// apply converts the answers on top of base. Inputs were validated by the form.
func (a answers) apply(base config.Config) (config.Config, error) {
	cfg := base
	cfg.Listen = strings.TrimSpace(a.listen)
	cfg.DogImage = strings.TrimSpace(a.dogImage)
	cfg.RPCURL = strings.TrimSpace(a.rpcURL)
	cfg.JournalDir = strings.TrimSpace(a.journalDir)
	cfg.TLSDomains = splitDomains(a.tlsDomains)
	cfg.CertCache = strings.TrimSpace(a.certCache)
	cfg.LogLevel = a.logLevel

	cfg.ChainID = 0
	if s := strings.TrimSpace(a.chainID); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return config.Config{}, errors.Wrap(err, "chain id")
		}
		cfg.ChainID = id
	}

	cfg.RequestTimeout = 0
	if s := strings.TrimSpace(a.requestTimeout); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return config.Config{}, errors.Wrap(err, "request timeout")
		}
		cfg.RequestTimeout = d
	}

	ttl, err := time.ParseDuration(strings.TrimSpace(a.sessionTTL))
	if err != nil {
		return config.Config{}, errors.Wrap(err, "session ttl")
	}
	cfg.SessionTTL = ttl

	return cfg, cfg.Validate()
}

func screen(step string) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("HOTDOG CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard, prefilled from current,
// and writes the result to path.
func RunTUI(current config.Config, path string) error {
	a := answersFrom(current)
	var confirm bool

	screen("STEP 1: WEB")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Sign up with a wallet, then look at a dog.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Description("host:port of the page (e.g. :8080)").
				Value(&a.listen).
				Validate(validateListen),
			huh.NewInput().
				Title("Dog image URL").
				Value(&a.dogImage).
				Validate(validateURL(false)),
			huh.NewInput().
				Title("TLS domains").
				Description("Comma separated, empty serves plain HTTP. Wallets need HTTPS outside localhost").
				Value(&a.tlsDomains),
		),
	).Run()
	if err != nil {
		return err
	}

	if len(splitDomains(a.tlsDomains)) > 0 {
		if a.certCache == "" {
			a.certCache = "cert-cache"
		}
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Certificate cache directory").
					Value(&a.certCache),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	screen("STEP 2: WALLET")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Request timeout").
				Description("Per wallet request (e.g. 30s), empty waits for the wallet").
				Value(&a.requestTimeout).
				Validate(validateOptionalDuration),
			huh.NewInput().
				Title("Session TTL").
				Description("How long an idle page keeps its session (e.g. 10m)").
				Value(&a.sessionTTL).
				Validate(validatePositiveDuration),
			huh.NewInput().
				Title("JSON-RPC URL").
				Description("Used by `hotdog connect`, empty means web only").
				Value(&a.rpcURL).
				Validate(validateURL(true)),
			huh.NewInput().
				Title("Expected chain id").
				Description("Empty accepts any chain").
				Value(&a.chainID).
				Validate(validateChainID),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 3: STORAGE & LOGS")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Connect journal directory").
				Description("Empty disables the journal").
				Value(&a.journalDir),
			huh.NewSelect[string]().
				Title("Log level").
				Options(
					huh.NewOption("Info", "info"),
					huh.NewOption("Debug", "debug"),
					huh.NewOption("Warn", "warn"),
					huh.NewOption("Error", "error"),
				).
				Value(&a.logLevel),
		),
	).Run()
	if err != nil {
		return err
	}

	cfg, err := a.apply(current)
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary(cfg)))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save Configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return ErrCancelled
	}

	if err := cfg.WriteYAML(path); err != nil {
		return errors.Wrap(err, "failed to save config file")
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s\nRun: hotdog --config %s serve", path, path)))
	return nil
}

func summary(cfg config.Config) string {
	orNone := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	timeout := "none"
	if cfg.RequestTimeout > 0 {
		timeout = cfg.RequestTimeout.String()
	}
	return fmt.Sprintf(
		"Listen: %s\nTLS: %s\nRequest timeout: %s\nSession TTL: %s\nRPC: %s\nJournal: %s\nLog level: %s",
		cfg.Listen, orNone(strings.Join(cfg.TLSDomains, ",")), timeout, cfg.SessionTTL,
		orNone(cfg.RPCURL), orNone(cfg.JournalDir), cfg.LogLevel,
	)
}

func validateListen(s string) error {
	if _, _, err := net.SplitHostPort(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("must be host:port")
	}
	return nil
}

func validateURL(optional bool) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			if optional {
				return nil
			}
			return fmt.Errorf("cannot be empty")
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("must be an absolute URL")
		}
		return nil
	}
}

func validateOptionalDuration(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration (e.g. 30s)")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validatePositiveDuration(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("must be a duration (e.g. 10m)")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateChainID(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := strconv.ParseUint(s, 10, 64); err != nil {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func splitDomains(s string) []string {
	var out []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

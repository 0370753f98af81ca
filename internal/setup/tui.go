package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/ipboard/config"
)

const (
	ConfigFile = "config.gen.yaml"
	EnvFile    = ".env"
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

// Answers collects what the wizard asks for.
type Answers struct {
	APIKey      string
	Backend     string
	StorePath   string
	RedisAddr   string
	Concurrency string
	MaxPages    string
	Interval    string
	DashAddr    string
	TLSDomain   string
	NATSURL     string
}

func defaultAnswers() Answers {
	d := config.Default()
	return Answers{
		Backend:     d.Storage.Backend,
		StorePath:   d.Storage.Path,
		RedisAddr:   d.Storage.RedisAddr,
		Concurrency: strconv.Itoa(d.Scan.Concurrency),
		MaxPages:    strconv.Itoa(d.Scan.MaxPages),
		Interval:    d.Scan.Interval.String(),
		DashAddr:    d.Dashboard.Addr,
	}
}

func screen(step string) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("IPBOARD CONFIG WIZARD"))
	fmt.Println(stepStyle.Render(step))
}

// RunTUI launches the terminal configuration wizard and writes the config
// and the API key into dir.
func RunTUI(dir string) error {
	a := defaultAnswers()
	var confirm bool

	screen("STEP 1: EXPLORER")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("The key is stored in " + EnvFile + ", never in the yaml config.\n"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Storyscan API key").
				Description("Leave empty to send anonymous requests").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 2: STORAGE")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Wallet store backend").
				Options(
					huh.NewOption("JSON file", config.BackendJSON),
					huh.NewOption("Redis", config.BackendRedis),
				).
				Value(&a.Backend),
		),
	).Run()
	if err != nil {
		return err
	}

	storeField := huh.NewInput().
		Title("Collection file").
		Value(&a.StorePath).
		Validate(validateNotEmpty)
	if a.Backend == config.BackendRedis {
		storeField = huh.NewInput().
			Title("Redis address").
			Description("host:port, password is read from " + config.EnvRedisPassword).
			Value(&a.RedisAddr).
			Validate(validateNotEmpty)
	}
	if err = huh.NewForm(huh.NewGroup(storeField)).Run(); err != nil {
		return err
	}

	screen("STEP 3: SCANNING")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Concurrency").
				Description("Wallets scanned in parallel").
				Value(&a.Concurrency).
				Validate(validatePositive),
			huh.NewInput().
				Title("Max pages per wallet").
				Value(&a.MaxPages).
				Validate(validatePositive),
			huh.NewInput().
				Title("Loop interval").
				Description("Pause between full runs (e.g. 1h)").
				Value(&a.Interval).
				Validate(validateDuration),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("STEP 4: DASHBOARD")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Listen address").
				Value(&a.DashAddr).
				Validate(validateNotEmpty),
			huh.NewInput().
				Title("TLS domain").
				Description("Optional, enables Let's Encrypt on :443").
				Value(&a.TLSDomain),
			huh.NewInput().
				Title("NATS url").
				Description("Optional, publishes scan events").
				Value(&a.NATSURL),
		),
	).Run()
	if err != nil {
		return err
	}

	screen("FINAL CONFIRMATION")
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(a.Summary()))

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
		return fmt.Errorf("setup cancelled by user")
	}

	configPath, err := Save(dir, a)
	if err != nil {
		return err
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(fmt.Sprintf("\n✓ Configuration saved to %s", configPath)))
	time.Sleep(1500 * time.Millisecond) // small pause to read success message
	return nil
}

// Summary renders the answers without the API key.
func (a Answers) Summary() string {
	store := a.StorePath
	if a.Backend == config.BackendRedis {
		store = a.RedisAddr
	}
	key := "not set"
	if a.APIKey != "" {
		key = "set"
	}

	return fmt.Sprintf(
		"API key: %s\nBackend: %s (%s)\nConcurrency: %s\nMax pages: %s\nInterval: %s\nDashboard: %s\n",
		key, a.Backend, store, a.Concurrency, a.MaxPages, a.Interval, a.DashAddr,
	)
}

// BuildConfig converts answers into the yaml layout read by config.Load.
func BuildConfig(a Answers) (config.ConfigTmp, error) {
	if err := validatePositive(a.Concurrency); err != nil {
		return config.ConfigTmp{}, fmt.Errorf("concurrency %w", err)
	}
	if err := validatePositive(a.MaxPages); err != nil {
		return config.ConfigTmp{}, fmt.Errorf("max pages %w", err)
	}
	interval, err := time.ParseDuration(a.Interval)
	if err != nil {
		return config.ConfigTmp{}, fmt.Errorf("invalid interval %q: %w", a.Interval, err)
	}

	var tmp config.ConfigTmp
	tmp.Storage.Backend = a.Backend
	if a.Backend == config.BackendRedis {
		tmp.Storage.Redis.Addr = a.RedisAddr
	} else {
		tmp.Storage.Path = a.StorePath
	}
	tmp.Scan.ConcurrencyStr = a.Concurrency
	tmp.Scan.MaxPagesStr = a.MaxPages
	tmp.Scan.Interval = interval
	tmp.Dashboard.Addr = a.DashAddr
	if d := strings.TrimSpace(a.TLSDomain); d != "" {
		tmp.Dashboard.TLSDomains = []string{d}
	}
	tmp.NATS.URL = strings.TrimSpace(a.NATSURL)

	return tmp, nil
}

// Save writes ConfigFile and, when a key was given, merges it into EnvFile
// with owner-only permissions. It returns the config path.
func Save(dir string, a Answers) (string, error) {
	tmp, err := BuildConfig(a)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to generate yaml: %w", err)
	}

	configPath := filepath.Join(dir, ConfigFile)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to save config file: %w", err)
	}

	if key := strings.TrimSpace(a.APIKey); key != "" {
		if err := writeEnv(filepath.Join(dir, EnvFile), config.EnvAPIKey, key); err != nil {
			return "", err
		}
	}

	return configPath, nil
}

func writeEnv(path, name, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		env = map[string]string{}
	}
	env[name] = value

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

func validateNotEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a valid integer")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a duration like 30m or 1h")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

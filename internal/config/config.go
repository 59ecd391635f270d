package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds process configuration. Everything operational (directory
// roots, listen address, SMTP relay) comes from the environment; behaviour
// knobs live in the hot-reloaded policy file instead.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Debug       bool

	// Base is the data root; the service tree hangs off Base/service.
	Base       string
	ServiceDir string

	UserDir       string
	HomeDir       string
	EmailsDir     string
	ResetCodesDir string
	QueueDir      string
	PolicyFile    string
	DomainsFile   string
	TLDFile       string

	// BaseUnixDir holds the passwd/shadow/group base fragments.
	BaseUnixDir string
	// RunDir receives the generated system files for the installer.
	RunDir string
	// PostfixDataDir receives the generated transport/virtual tables.
	PostfixDataDir string

	ListenAddr string

	SMTPHost string
	SMTPPort int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	base := getenv("BASE", "/opt/data")
	service := filepath.Join(base, "service")

	return Config{
		AppName:        getenv("APP_SERVICE", "doms"),
		AppVersion:     getenv("APP_VERSION", "0.1.0"),
		Environment:    getenv("ENVIRONMENT", "development"),
		Debug:          getenvBool("DEBUG_MODE", false),
		Base:           base,
		ServiceDir:     service,
		UserDir:        filepath.Join(service, "users"),
		HomeDir:        filepath.Join(service, "homedirs"),
		EmailsDir:      filepath.Join(service, "emails"),
		ResetCodesDir:  filepath.Join(service, "reset_codes"),
		QueueDir:       filepath.Join(service, "commands"),
		PolicyFile:     filepath.Join(service, "config", "policy.json"),
		DomainsFile:    filepath.Join(service, "config", "used_domains.json"),
		TLDFile:        filepath.Join(service, "config", "relay_tlds.txt"),
		BaseUnixDir:    getenv("BASE_UX_DIR", "/usr/local/etc/uid"),
		RunDir:         getenv("RUN_DIR", "/run"),
		PostfixDataDir: getenv("POSTFIX_DATA_DIR", filepath.Join(base, "postfix", "data")),
		ListenAddr:     getenv("LISTEN_ADDR", ":8180"),
		SMTPHost:       getenv("SMTP_HOST", "127.0.0.1"),
		SMTPPort:       getenvInt("SMTP_PORT", 25),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

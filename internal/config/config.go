package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const hardMaxExportAttempts = 10

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string

	LogLevel  string
	LogFormat string

	CatalogSource       string
	CatalogPath         string
	CatalogAPIBaseURL   string
	CatalogAPIToken     string
	CatalogRateLimitRPS int
	CatalogTimeoutMs    int

	ReferenceLengths       []int
	ColorMinLength         int
	MinPriceValue          float64
	MaxReferenceDistance   int
	MaxModelDistance       int
	MaxQuantity            int
	EnableTextDiscovery    bool
	DiscoveryScanLimit     int
	TrustConfusableMatches bool

	ValidationMaxAttempts int
	EnableValidationAgent bool
	PromptCatalogLimit    int

	LLMProvider  string
	LLMTimeoutMs int
	GroqAPIKey   string
	GroqModel    string
	GroqAPIURL   string
	GeminiAPIKey string
	GeminiModel  string

	GoogleSheetsEnabled         bool
	GoogleSheetID               string
	GoogleSheetsTabName         string
	GoogleServiceAccountEmail   string
	GoogleServiceAccountKey     string
	GoogleServiceAccountKeyFile string

	HTTPAddr            string
	AutoExportOnProcess bool
	MaxUploadMB         int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),

		CatalogSource:       strings.ToLower(getEnv("CATALOG_SOURCE", "file")),
		CatalogPath:         getEnv("CATALOG_PATH", ""),
		CatalogAPIBaseURL:   getEnv("CATALOG_API_BASE_URL", ""),
		CatalogAPIToken:     getEnv("CATALOG_API_TOKEN", ""),
		CatalogRateLimitRPS: getEnvInt("CATALOG_RATE_LIMIT_RPS", 5),
		CatalogTimeoutMs:    getEnvInt("CATALOG_TIMEOUT_MS", 30000),

		ReferenceLengths:       getEnvIntList("REFERENCE_LENGTHS", getEnvIntList("REFERENCE_LENGTH", []int{6, 7, 8, 9})),
		ColorMinLength:         getEnvInt("COLOR_MIN_LENGTH", 4),
		MinPriceValue:          getEnvFloat("MIN_PRICE_VALUE", 10),
		MaxReferenceDistance:   getEnvInt("MAX_REFERENCE_DISTANCE", 1),
		MaxModelDistance:       getEnvInt("MAX_MODEL_DISTANCE", 2),
		MaxQuantity:            getEnvInt("MAX_QUANTITY", 10),
		EnableTextDiscovery:    getEnvBool("ENABLE_TEXT_DISCOVERY", true),
		DiscoveryScanLimit:     getEnvInt("DISCOVERY_SCAN_LIMIT", 200),
		TrustConfusableMatches: getEnvBool("TRUST_CONFUSABLE_MATCH", false),

		ValidationMaxAttempts: ClampAttempts(getEnvInt("VALIDATION_MAX_ATTEMPTS", 3)),
		EnableValidationAgent: getEnvBool("ENABLE_VALIDATION_AGENT", true),
		PromptCatalogLimit:    getEnvInt("PROMPT_CATALOG_LIMIT", 60),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", "groq")),
		LLMTimeoutMs: getEnvInt("LLM_TIMEOUT_MS", 60000),
		GroqAPIKey:   getEnv("GROQ_API_KEY", ""),
		GroqModel:    getEnv("GROQ_MODEL", ""),
		GroqAPIURL:   getEnv("GROQ_API_URL", "https://api.groq.com/openai/v1/chat/completions"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		GoogleSheetsEnabled:         getEnvBool("ENABLE_GOOGLE_SHEETS", false),
		GoogleSheetID:               getEnv("GOOGLE_SHEET_ID", ""),
		GoogleSheetsTabName:         getEnv("GOOGLE_SHEETS_TAB_NAME", "Sheet1"),
		GoogleServiceAccountEmail:   getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
		GoogleServiceAccountKey:     strings.ReplaceAll(getEnv("GOOGLE_SERVICE_ACCOUNT_PRIVATE_KEY", ""), `\n`, "\n"),
		GoogleServiceAccountKeyFile: getEnv("GOOGLE_SERVICE_ACCOUNT_KEY_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		HTTPAddr:            getEnv("HTTP_ADDR", ":3000"),
		AutoExportOnProcess: getEnvBool("AUTO_EXPORT_ON_PROCESS", false),
		MaxUploadMB:         getEnvInt("MAX_UPLOAD_MB", 12),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

// CatalogCandidates lists the files tried, in order, when loading the catalog from disk.
func (c Config) CatalogCandidates() []string {
	if strings.TrimSpace(c.CatalogPath) != "" {
		return []string{c.CatalogPath}
	}
	cwd, _ := os.Getwd()
	return []string{
		filepath.Join(cwd, "data", "catalog.json"),
		filepath.Join(cwd, "src", "data", "catalog.json"),
		filepath.Join(cwd, "data", "catalog.xlsx"),
		filepath.Join(cwd, "data", "catalog.yaml"),
	}
}

func (c Config) SheetURL() string {
	if !c.GoogleSheetsEnabled || strings.TrimSpace(c.GoogleSheetID) == "" {
		return ""
	}
	return "https://docs.google.com/spreadsheets/d/" + c.GoogleSheetID
}

// ClampAttempts applies the export attempt policy: non-positive values fall
// back to 3 and nothing goes above 10.
func ClampAttempts(n int) int {
	if n <= 0 {
		return 3
	}
	if n > hardMaxExportAttempts {
		return hardMaxExportAttempts
	}
	return n
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvIntList(key string, fallback []int) []int {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	out := []int{}
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

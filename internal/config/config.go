package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultSiteRoot        = "site"
	defaultManifest        = "site.yaml"
	defaultFragmentTimeout = 5 * time.Second
	defaultCacheTTL        = 5 * time.Minute
	defaultSendmailPath    = "/usr/sbin/sendmail"
	defaultSMTPPort        = 587
	defaultMailFrom        = "Jim's Hazardous Material Removal (Auburn) <noreply@jimshazmatremoval.com.au>"
	defaultNoReply         = "noreply@jimshazmatremoval.com.au"
	defaultPrimary         = "auburn@jimshazmatremoval.com.au"
	defaultMaxUpload       = 32 << 20
	defaultMailTimeZone    = "Australia/Sydney"
	defaultArchiveColl     = "quoteRequests"
	defaultSecretsFallback = ".secrets.local"
	defaultMetricsNS       = "auburn_site"
)

// Mail transports understood by the quote relay.
const (
	TransportSendmail = "sendmail"
	TransportSMTP     = "smtp"
	TransportLog      = "log"
)

// Policies for a failed delivery to the secondary recipient.
const (
	SecondaryLog     = "log"
	SecondaryIgnore  = "ignore"
	SecondarySurface = "surface"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Site          SiteConfig
	Cache         CacheConfig
	Mail          MailConfig
	Archive       ArchiveConfig
	Secrets       SecretsConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string { return ":" + s.Port }

// SiteConfig locates the page tree and the fragment origin.
type SiteConfig struct {
	Root string
	// Manifest is resolved relative to Root unless absolute.
	Manifest string
	// FragmentOrigin, when set, makes fragments load over HTTP from that origin instead of Root.
	FragmentOrigin  string
	FragmentTimeout time.Duration
	CORSOrigins     []string
}

// CacheConfig selects the fragment cache backend. An empty RedisURL keeps the cache in memory.
type CacheConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// MailConfig configures the quote relay.
type MailConfig struct {
	Transport       string
	SendmailPath    string
	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	From            string
	NoReply         string
	Primary         string
	Secondary       string
	SecondaryPolicy string
	MaxUploadBytes  int64
	// TimeZone is the IANA zone used for timestamps in notification mails.
	TimeZone string
}

// ArchiveConfig enables the optional submission archive. Empty values disable the matching sink.
type ArchiveConfig struct {
	ProjectID  string
	Collection string
	Bucket     string
	Topic      string
}

// SecretsConfig controls how secret:// references are resolved.
type SecretsConfig struct {
	ProjectID    string
	Environment  string
	FallbackFile string
}

// ObservabilityConfig groups logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel         string
	ProjectID        string
	MetricsNamespace string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over
// system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration from defaults, the .env file, the process environment and
// an explicit map (in increasing precedence), then resolves secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            firstPresent(lookup, defaultPort, "SITE_SERVER_PORT", "PORT"),
			ReadTimeout:     durationWithDefault(lookup, "SITE_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "SITE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "SITE_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "SITE_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Site: SiteConfig{
			Root:            stringWithDefault(lookup, "SITE_ROOT", defaultSiteRoot),
			Manifest:        stringWithDefault(lookup, "SITE_MANIFEST", defaultManifest),
			FragmentOrigin:  stringWithDefault(lookup, "SITE_FRAGMENT_ORIGIN", ""),
			FragmentTimeout: durationWithDefault(lookup, "SITE_FRAGMENT_TIMEOUT", defaultFragmentTimeout),
			CORSOrigins:     csvWithDefault(lookup, "SITE_CORS_ORIGINS"),
		},
		Cache: CacheConfig{
			Enabled:  boolWithDefault(lookup, "SITE_CACHE_ENABLED", true),
			RedisURL: stringWithDefault(lookup, "SITE_CACHE_REDIS_URL", ""),
			TTL:      durationWithDefault(lookup, "SITE_CACHE_TTL", defaultCacheTTL),
		},
		Mail: MailConfig{
			Transport:       strings.ToLower(stringWithDefault(lookup, "SITE_MAIL_TRANSPORT", TransportSendmail)),
			SendmailPath:    stringWithDefault(lookup, "SITE_MAIL_SENDMAIL_PATH", defaultSendmailPath),
			SMTPHost:        stringWithDefault(lookup, "SITE_MAIL_SMTP_HOST", ""),
			SMTPPort:        intWithDefault(lookup, "SITE_MAIL_SMTP_PORT", defaultSMTPPort),
			SMTPUsername:    stringWithDefault(lookup, "SITE_MAIL_SMTP_USERNAME", ""),
			SMTPPassword:    stringWithDefault(lookup, "SITE_MAIL_SMTP_PASSWORD", ""),
			From:            stringWithDefault(lookup, "SITE_MAIL_FROM", defaultMailFrom),
			NoReply:         stringWithDefault(lookup, "SITE_MAIL_NOREPLY", defaultNoReply),
			Primary:         stringWithDefault(lookup, "SITE_MAIL_PRIMARY", defaultPrimary),
			Secondary:       stringWithDefault(lookup, "SITE_MAIL_SECONDARY", ""),
			SecondaryPolicy: strings.ToLower(stringWithDefault(lookup, "SITE_MAIL_SECONDARY_POLICY", SecondaryLog)),
			MaxUploadBytes:  int64(intWithDefault(lookup, "SITE_MAIL_MAX_UPLOAD_BYTES", defaultMaxUpload)),
			TimeZone:        stringWithDefault(lookup, "SITE_MAIL_TIMEZONE", defaultMailTimeZone),
		},
		Archive: ArchiveConfig{
			ProjectID:  stringWithDefault(lookup, "SITE_ARCHIVE_PROJECT_ID", ""),
			Collection: stringWithDefault(lookup, "SITE_ARCHIVE_COLLECTION", defaultArchiveColl),
			Bucket:     stringWithDefault(lookup, "SITE_ARCHIVE_BUCKET", ""),
			Topic:      stringWithDefault(lookup, "SITE_ARCHIVE_TOPIC", ""),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SITE_SECRETS_PROJECT_ID", ""),
			Environment:  strings.ToLower(stringWithDefault(lookup, "SITE_ENV", "local")),
			FallbackFile: stringWithDefault(lookup, "SITE_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
		Observability: ObservabilityConfig{
			LogLevel:         stringWithDefault(lookup, "LOG_LEVEL", "info"),
			ProjectID:        stringWithDefault(lookup, "SITE_OBSERVABILITY_PROJECT_ID", ""),
			MetricsNamespace: stringWithDefault(lookup, "SITE_METRICS_NAMESPACE", defaultMetricsNS),
		},
	}

	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Archive.ProjectID
	}
	if cfg.Observability.ProjectID == "" {
		cfg.Observability.ProjectID = cfg.Archive.ProjectID
	}
	if cfg.Site.Manifest != "" && !filepath.IsAbs(cfg.Site.Manifest) {
		cfg.Site.Manifest = filepath.Join(cfg.Site.Root, cfg.Site.Manifest)
	}

	secretFields := []*string{
		&cfg.Mail.SMTPPassword,
		&cfg.Mail.SMTPUsername,
		&cfg.Cache.RedisURL,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if strings.TrimSpace(cfg.Site.Root) == "" {
		missing = append(missing, "Site.Root")
	}
	if cfg.Site.FragmentTimeout <= 0 {
		missing = append(missing, "Site.FragmentTimeout")
	}
	switch cfg.Mail.Transport {
	case TransportSendmail:
		if strings.TrimSpace(cfg.Mail.SendmailPath) == "" {
			missing = append(missing, "Mail.SendmailPath")
		}
	case TransportSMTP:
		if strings.TrimSpace(cfg.Mail.SMTPHost) == "" {
			missing = append(missing, "Mail.SMTPHost")
		}
		if cfg.Mail.SMTPPort <= 0 {
			missing = append(missing, "Mail.SMTPPort")
		}
	case TransportLog:
	default:
		missing = append(missing, "Mail.Transport")
	}
	if strings.TrimSpace(cfg.Mail.From) == "" {
		missing = append(missing, "Mail.From")
	}
	if strings.TrimSpace(cfg.Mail.Primary) == "" {
		missing = append(missing, "Mail.Primary")
	}
	if strings.TrimSpace(cfg.Mail.Secondary) == "" {
		missing = append(missing, "Mail.Secondary")
	}
	switch cfg.Mail.SecondaryPolicy {
	case SecondaryLog, SecondaryIgnore, SecondarySurface:
	default:
		missing = append(missing, "Mail.SecondaryPolicy")
	}
	if cfg.Mail.MaxUploadBytes <= 0 {
		missing = append(missing, "Mail.MaxUploadBytes")
	}
	if _, err := time.LoadLocation(cfg.Mail.TimeZone); err != nil {
		missing = append(missing, "Mail.TimeZone")
	}
	if (cfg.Archive.Bucket != "" || cfg.Archive.Topic != "") && cfg.Archive.ProjectID == "" {
		missing = append(missing, "Archive.ProjectID")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func firstPresent(lookup func(string) (string, bool), fallback string, keys ...string) string {
	for _, key := range keys {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return fallback
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 60 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"

	defaultStorageBackend = BlobBackendGCS
	defaultImagePrefix    = "lehangaImages/"
	defaultSignedURLTTL   = 15 * time.Minute

	defaultImageHostBackend = ImageHostImgBB
	defaultImgBBEndpoint    = "https://api.imgbb.com/1/upload"
	defaultImageHostTimeout = 30 * time.Second

	defaultLocalStoreBackend = LocalStoreFile
	defaultLocalStoreFile    = "storefront-local.json"

	defaultShareCollection = "shares"
	defaultShareTimeout    = 5 * time.Second
	defaultShareRateLimit  = 30
	defaultShareRateWindow = time.Minute
	defaultUploadReplayTTL = 24 * time.Hour

	defaultSessionCookie   = "storefront_session"
	defaultSessionIdleTTL  = 2 * time.Hour
	defaultSessionSweep    = 10 * time.Minute
	defaultMigrationResume = 5 * time.Minute
	defaultMigrationStepTO = 30 * time.Second
	defaultMaxUploadBytes  = 32 << 20
)

// Blob store backends.
const (
	BlobBackendGCS   = "gcs"
	BlobBackendMinIO = "minio"
)

// Image hosting backends.
const (
	ImageHostImgBB      = "imgbb"
	ImageHostCloudinary = "cloudinary"
)

// Local persistent store backends.
const (
	LocalStoreFile  = "file"
	LocalStoreRedis = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Firebase   FirebaseConfig
	Firestore  FirestoreConfig
	Storage    StorageConfig
	ImageHost  ImageHostConfig
	LocalStore LocalStoreConfig
	Share      ShareConfig
	Session    SessionConfig
	Migration  MigrationConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	PublicOrigin   string
	MaxUploadBytes int64
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// WebAPIKey authorises password sign-in against the identity toolkit.
	WebAPIKey string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig selects the blob store that keeps legacy image objects.
type StorageConfig struct {
	Backend          string
	Bucket           string
	Prefix           string
	SignedURLTTL     time.Duration
	ArchiveOriginals bool
	MinIO            MinIOConfig
}

// MinIOConfig configures an S3-compatible endpoint.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// ImageHostConfig configures the third-party image hosting API.
type ImageHostConfig struct {
	Backend       string
	ImgBBKey      string
	ImgBBEndpoint string
	CloudinaryURL string
	Folder        string
	Timeout       time.Duration
}

// LocalStoreConfig configures per-shopper key/value persistence.
type LocalStoreConfig struct {
	Backend       string
	FilePath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ShareConfig controls share analytics.
type ShareConfig struct {
	Collection    string
	PubSubTopic   string
	RecordTimeout time.Duration
	// RateLimit caps share requests per shopper within RateWindow; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// SessionConfig controls the shopper session cookie.
type SessionConfig struct {
	CookieName    string
	HashKey       string
	BlockKey      string
	SecureCookie  bool
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// MigrationConfig controls category migration sagas.
type MigrationConfig struct {
	ResumeInterval time.Duration
	StepTimeout    time.Duration
	// UploadReplayTTL is how long an upload response is replayed for a repeated Idempotency-Key.
	UploadReplayTTL time.Duration
}

// SecurityConfig groups deployment-level security settings.
type SecurityConfig struct {
	Environment string
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

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	redacted := e.RedactedNames()
	if len(redacted) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// RedactedNames returns hashed secret identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.names) == 0 {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// EnvironmentValues returns the effective environment after applying the same precedence rules as
// Load (dotenv < OS env < explicit env map). Callers use it to build the secret fetcher before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				continue
			}
			values[key] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that wins over every other source.
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

// WithRequiredSecrets marks config fields (e.g. "ImageHost.ImgBBKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	if options.secret == nil {
		options.secret = SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		})
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort),
			ReadTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			PublicOrigin:   strings.TrimRight(stringWithDefault(lookup, "STOREFRONT_PUBLIC_ORIGIN", ""), "/"),
			MaxUploadBytes: int64(intWithDefault(lookup, "STOREFRONT_SERVER_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STOREFRONT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STOREFRONT_FIREBASE_CREDENTIALS_FILE", ""),
			WebAPIKey:       stringWithDefault(lookup, "STOREFRONT_FIREBASE_WEB_API_KEY", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			Backend:          strings.ToLower(stringWithDefault(lookup, "STOREFRONT_STORAGE_BACKEND", defaultStorageBackend)),
			Bucket:           stringWithDefault(lookup, "STOREFRONT_STORAGE_BUCKET", ""),
			Prefix:           stringWithDefault(lookup, "STOREFRONT_STORAGE_PREFIX", defaultImagePrefix),
			SignedURLTTL:     durationWithDefault(lookup, "STOREFRONT_STORAGE_SIGNED_URL_TTL", defaultSignedURLTTL),
			ArchiveOriginals: boolWithDefault(lookup, "STOREFRONT_STORAGE_ARCHIVE_ORIGINALS", false),
			MinIO: MinIOConfig{
				Endpoint:  stringWithDefault(lookup, "STOREFRONT_MINIO_ENDPOINT", ""),
				AccessKey: stringWithDefault(lookup, "STOREFRONT_MINIO_ACCESS_KEY", ""),
				SecretKey: stringWithDefault(lookup, "STOREFRONT_MINIO_SECRET_KEY", ""),
				UseSSL:    boolWithDefault(lookup, "STOREFRONT_MINIO_USE_SSL", true),
			},
		},
		ImageHost: ImageHostConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "STOREFRONT_IMAGEHOST_BACKEND", defaultImageHostBackend)),
			ImgBBKey:      stringWithDefault(lookup, "STOREFRONT_IMAGEHOST_IMGBB_KEY", ""),
			ImgBBEndpoint: stringWithDefault(lookup, "STOREFRONT_IMAGEHOST_IMGBB_ENDPOINT", defaultImgBBEndpoint),
			CloudinaryURL: stringWithDefault(lookup, "STOREFRONT_IMAGEHOST_CLOUDINARY_URL", ""),
			Folder:        stringWithDefault(lookup, "STOREFRONT_IMAGEHOST_FOLDER", ""),
			Timeout:       durationWithDefault(lookup, "STOREFRONT_IMAGEHOST_TIMEOUT", defaultImageHostTimeout),
		},
		LocalStore: LocalStoreConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "STOREFRONT_LOCALSTORE_BACKEND", defaultLocalStoreBackend)),
			FilePath:      stringWithDefault(lookup, "STOREFRONT_LOCALSTORE_FILE", defaultLocalStoreFile),
			RedisAddr:     stringWithDefault(lookup, "STOREFRONT_REDIS_ADDR", ""),
			RedisPassword: stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			RedisDB:       intWithDefault(lookup, "STOREFRONT_REDIS_DB", 0),
		},
		Share: ShareConfig{
			Collection:    stringWithDefault(lookup, "STOREFRONT_SHARE_COLLECTION", defaultShareCollection),
			PubSubTopic:   stringWithDefault(lookup, "STOREFRONT_SHARE_PUBSUB_TOPIC", ""),
			RecordTimeout: durationWithDefault(lookup, "STOREFRONT_SHARE_RECORD_TIMEOUT", defaultShareTimeout),
			RateLimit:     intWithDefault(lookup, "STOREFRONT_SHARE_RATE_LIMIT", defaultShareRateLimit),
			RateWindow:    durationWithDefault(lookup, "STOREFRONT_SHARE_RATE_WINDOW", defaultShareRateWindow),
		},
		Session: SessionConfig{
			CookieName:    stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookie),
			HashKey:       stringWithDefault(lookup, "STOREFRONT_SESSION_HASH_KEY", ""),
			BlockKey:      stringWithDefault(lookup, "STOREFRONT_SESSION_BLOCK_KEY", ""),
			SecureCookie:  boolWithDefault(lookup, "STOREFRONT_SESSION_SECURE", true),
			IdleTimeout:   durationWithDefault(lookup, "STOREFRONT_SESSION_IDLE_TIMEOUT", defaultSessionIdleTTL),
			SweepInterval: durationWithDefault(lookup, "STOREFRONT_SESSION_SWEEP_INTERVAL", defaultSessionSweep),
		},
		Migration: MigrationConfig{
			ResumeInterval:  durationWithDefault(lookup, "STOREFRONT_MIGRATION_RESUME_INTERVAL", defaultMigrationResume),
			StepTimeout:     durationWithDefault(lookup, "STOREFRONT_MIGRATION_STEP_TIMEOUT", defaultMigrationStepTO),
			UploadReplayTTL: durationWithDefault(lookup, "STOREFRONT_UPLOAD_REPLAY_TTL", defaultUploadReplayTTL),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Storage.Prefix != "" && !strings.HasSuffix(cfg.Storage.Prefix, "/") {
		cfg.Storage.Prefix += "/"
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Firebase.WebAPIKey", &cfg.Firebase.WebAPIKey},
		{"ImageHost.ImgBBKey", &cfg.ImageHost.ImgBBKey},
		{"ImageHost.CloudinaryURL", &cfg.ImageHost.CloudinaryURL},
		{"Storage.MinIO.SecretKey", &cfg.Storage.MinIO.SecretKey},
		{"LocalStore.RedisPassword", &cfg.LocalStore.RedisPassword},
		{"Session.HashKey", &cfg.Session.HashKey},
		{"Session.BlockKey", &cfg.Session.BlockKey},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
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
	if cfg.Server.MaxUploadBytes <= 0 {
		missing = append(missing, "Server.MaxUploadBytes")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}

	switch cfg.Storage.Backend {
	case BlobBackendGCS:
		if cfg.Storage.Bucket == "" {
			missing = append(missing, "Storage.Bucket")
		}
	case BlobBackendMinIO:
		if cfg.Storage.Bucket == "" {
			missing = append(missing, "Storage.Bucket")
		}
		if cfg.Storage.MinIO.Endpoint == "" {
			missing = append(missing, "Storage.MinIO.Endpoint")
		}
	default:
		missing = append(missing, "Storage.Backend")
	}

	switch cfg.ImageHost.Backend {
	case ImageHostImgBB:
		if cfg.ImageHost.ImgBBEndpoint == "" {
			missing = append(missing, "ImageHost.ImgBBEndpoint")
		}
	case ImageHostCloudinary:
	default:
		missing = append(missing, "ImageHost.Backend")
	}

	switch cfg.LocalStore.Backend {
	case LocalStoreFile:
		if cfg.LocalStore.FilePath == "" {
			missing = append(missing, "LocalStore.FilePath")
		}
	case LocalStoreRedis:
		if cfg.LocalStore.RedisAddr == "" {
			missing = append(missing, "LocalStore.RedisAddr")
		}
	default:
		missing = append(missing, "LocalStore.Backend")
	}

	if strings.TrimSpace(cfg.Share.Collection) == "" {
		missing = append(missing, "Share.Collection")
	}
	if strings.TrimSpace(cfg.Session.CookieName) == "" {
		missing = append(missing, "Session.CookieName")
	}
	if cfg.Session.IdleTimeout <= 0 {
		missing = append(missing, "Session.IdleTimeout")
	}
	if cfg.Migration.StepTimeout <= 0 {
		missing = append(missing, "Migration.StepTimeout")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) != "" {
			continue
		}
		missing = append(missing, trimmed)
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
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

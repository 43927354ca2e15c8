package main

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/nitu-designer/lehangas/internal/platform/secrets"
)

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("STOREFRONT_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("STOREFRONT_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("STOREFRONT_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("STOREFRONT_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if projects := parseKeyValueList(lookup("STOREFRONT_SECRET_PROJECT_IDS"), strings.ToLower); len(projects) > 0 {
		opts = append(opts, secrets.WithProjectMap(projects))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if pins := secretVersionPins(lookup("STOREFRONT_SECRET_VERSION_PINS")); len(pins) > 0 {
		opts = append(opts, secrets.WithVersionPins(pins))
	}
	if credentialsFile := lookup("STOREFRONT_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets the selected backends cannot start without.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Firebase.WebAPIKey", "Session.HashKey"}
	switch strings.ToLower(strings.TrimSpace(env["STOREFRONT_IMAGEHOST_BACKEND"])) {
	case "cloudinary":
		required = append(required, "ImageHost.CloudinaryURL")
	default:
		required = append(required, "ImageHost.ImgBBKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["STOREFRONT_STORAGE_BACKEND"]), "minio") {
		required = append(required, "Storage.MinIO.SecretKey")
	}
	return required
}

// secretVersionPins parses "ref=version" pairs, normalising refs to secret:// URIs.
func secretVersionPins(raw string) map[string]string {
	return parseKeyValueList(raw, func(ref string) string {
		if strings.HasPrefix(ref, "sm://") {
			return "secret://" + strings.TrimPrefix(ref, "sm://")
		}
		if !strings.HasPrefix(ref, "secret://") {
			return "secret://" + ref
		}
		return ref
	})
}

func parseKeyValueList(raw string, normaliseKey func(string) string) map[string]string {
	result := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		if normaliseKey != nil {
			key = normaliseKey(key)
		}
		result[key] = value
	}
	return result
}

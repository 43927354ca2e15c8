package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nitu-designer/lehangas/internal/platform/auth"
	"github.com/nitu-designer/lehangas/internal/platform/httpx"
	"github.com/nitu-designer/lehangas/internal/repositories"
	"github.com/nitu-designer/lehangas/internal/services"
)

const maxJSONRequestBody = 64 * 1024

// writeServiceError maps service and repository failures onto the JSON error envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, resource string) {
	if err == nil {
		return
	}
	resource = strings.TrimSpace(resource)
	if resource == "" {
		resource = "resource"
	}

	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		switch svcErr.Kind {
		case services.ErrorKindValidation:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", svcErr.Message, http.StatusBadRequest))
			return
		case services.ErrorKindMigrationTargetRequired:
			httpx.WriteError(ctx, w, httpx.NewError("migration_target_required", svcErr.Message, http.StatusConflict))
			return
		case services.ErrorKindStoreWriteFailed:
			httpx.WriteError(ctx, w, httpx.NewError("store_write_failed", svcErr.Message, http.StatusBadGateway))
			return
		case services.ErrorKindUploadFailed:
			httpx.WriteError(ctx, w, httpx.NewError("upload_failed", svcErr.Message, http.StatusBadGateway))
			return
		}
	}

	if errors.Is(err, auth.ErrInvalidCredentials) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_credentials", "invalid email or password", http.StatusUnauthorized))
		return
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			httpx.WriteError(ctx, w, httpx.NewError(resource+"_not_found", resource+" not found", http.StatusNotFound))
			return
		case repoErr.IsConflict():
			httpx.WriteError(ctx, w, httpx.NewError(resource+"_conflict", err.Error(), http.StatusConflict))
			return
		case repoErr.IsUnavailable():
			httpx.WriteError(ctx, w, httpx.NewError("repository_unavailable", resource+" repository unavailable", http.StatusServiceUnavailable))
			return
		}
	}

	httpx.WriteError(ctx, w, httpx.NewError("internal_error", err.Error(), http.StatusInternalServerError))
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func invalidRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

// decodeJSONBody reads a bounded JSON body into dst and rejects unknown fields.
func decodeJSONBody(r *http.Request, dst any) error {
	limited := io.LimitReader(r.Body, maxJSONRequestBody)
	defer r.Body.Close()
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/http/middleware"
	"weldflow-api/internal/observability/logger"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// errBadBody wraps JSON decoding failures.
var errBadBody = errors.New("invalid JSON body")

// Helper functions for standardized responses

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

type dataEnvelope struct {
	Data interface{} `json:"data"`
}

// writeList wraps a slice in {"data": [...]}.
func writeList(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, dataEnvelope{Data: data})
}

// workspaceFrom returns the context resolved by WorkspaceMiddleware or writes
// a 500 when the route was mounted without it.
func workspaceFrom(w http.ResponseWriter, r *http.Request) (domain.WorkspaceContext, bool) {
	wctx, ok := middleware.GetWorkspaceContext(r.Context())
	if !ok {
		logger.GetLogger(r.Context()).Error(r.Context(), "workspace context missing",
			logger.Module("http"), logger.Action("workspace"))
		httperr.InternalError(w, r.Context())
		return domain.WorkspaceContext{}, false
	}
	return wctx, true
}

// decodeBody decodes a JSON body into dst and runs the validate tags.
// On failure it writes the 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	ctx := r.Context()

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, errBadBody.Error()+": "+err.Error())
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			httperr.BadRequest400WithFields(w, ctx, httperr.ErrCodeValidationError, "request validation failed", validationFields(verrs))
			return false
		}
		httperr.BadRequest400(w, ctx, httperr.ErrCodeValidationError, err.Error())
		return false
	}
	return true
}

func validationFields(verrs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[lowerFirst(name)] = rule
	}
	return fields
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// parseLimit reads ?limit= (1..100). Zero means "use the default".
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 1 || limit > 100 {
		httperr.BadRequest400(w, r.Context(), httperr.ErrCodeInvalidLimit, "limit must be between 1 and 100")
		return 0, false
	}
	return limit, true
}

// parseKind validates the {kind} path segment.
func parseKind(w http.ResponseWriter, ctx context.Context, raw string) (domain.RecordKind, bool) {
	kind := domain.RecordKind(raw)
	if !kind.IsValid() {
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidKind, "kind must be one of: "+kindList())
		return "", false
	}
	return kind, true
}

func kindList() string {
	names := make([]string, 0, len(domain.AllRecordKinds))
	for _, k := range domain.AllRecordKinds {
		names = append(names, string(k))
	}
	return strings.Join(names, ", ")
}

func optionalQuery(r *http.Request, key string) *string {
	if v := strings.TrimSpace(r.URL.Query().Get(key)); v != "" {
		return &v
	}
	return nil
}

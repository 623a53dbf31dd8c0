package server

import (
	"encoding/json"
	"net/http"

	"github.com/magefree/tabletop-server-go/internal/game"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// retryAfterSeconds is advertised to clients that hit a busy session.
const retryAfterSeconds = "1"

// httpStatus maps an error kind to the HTTP status an API client sees.
func httpStatus(kind game.Kind) int {
	switch kind {
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindConflict, game.KindInvalidState:
		return http.StatusConflict
	case game.KindForbidden:
		return http.StatusForbidden
	case game.KindInvalidArgument:
		return http.StatusBadRequest
	case game.KindBusy, game.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// grpcCode maps an error kind to a gRPC status code.
func grpcCode(kind game.Kind) codes.Code {
	switch kind {
	case game.KindNotFound:
		return codes.NotFound
	case game.KindConflict:
		return codes.AlreadyExists
	case game.KindForbidden:
		return codes.PermissionDenied
	case game.KindInvalidState:
		return codes.FailedPrecondition
	case game.KindInvalidArgument:
		return codes.InvalidArgument
	case game.KindBusy:
		return codes.ResourceExhausted
	case game.KindUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatus converts a session error into a gRPC status error. Errors that
// already carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	kind := game.KindOf(err)
	return status.Error(grpcCode(kind), game.DetailOf(err).Message)
}

type errorBody struct {
	Error game.Detail `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := game.KindOf(err)
	code := httpStatus(kind)
	if kind == game.KindBusy {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	if code >= http.StatusInternalServerError {
		a.logger.Warn("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", code),
			zap.Error(err),
		)
	}
	writeJSON(w, code, errorBody{Error: game.DetailOf(err)})
}

package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"courier/pkg/apperr"
	"courier/pkg/state/logger"

	"github.com/valyala/fasthttp"
)

const maxBodyBytes = 1 << 20

// WriteJSON writes v with the given status; status 0 leaves the default.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetContentType("application/json")
	if status != 0 {
		ctx.SetStatusCode(status)
	}
	if err := json.NewEncoder(ctx).Encode(v); err != nil {
		logger.Error("response_encode_failed", "path", string(ctx.Path()), "error", err)
	}
}

// WriteJSONError writes {"error": message}.
func WriteJSONError(ctx *fasthttp.RequestCtx, status int, message string) {
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	_ = json.NewEncoder(ctx).Encode(map[string]string{"error": message})
}

// WriteError maps err to a status through its apperr kind. Unclassified
// errors are logged and reported as internal errors.
func WriteError(ctx *fasthttp.RequestCtx, err error) {
	status := apperr.HTTPStatus(err)
	if status >= fasthttp.StatusInternalServerError {
		logger.Error("request_failed", "method", string(ctx.Method()), "path", string(ctx.Path()), "error", err)
	}
	WriteJSONError(ctx, status, apperr.Message(err))
}

// BindJSON decodes the request body into v.
func BindJSON(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return apperr.Validation("bind", "request body is required")
	}
	if len(body) > maxBodyBytes {
		return apperr.Validation("bind", "request body too large")
	}
	if err := json.Unmarshal(body, v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return apperr.Wrap(apperr.KindValidation, "bind", fmt.Sprintf("invalid JSON at offset %d", syntax.Offset), err)
		}
		return apperr.Wrap(apperr.KindValidation, "bind", "invalid request body", err)
	}
	return nil
}

// PathParam returns a captured {name} segment, or "".
func PathParam(ctx *fasthttp.RequestCtx, name string) string {
	if v, ok := ctx.UserValue(name).(string); ok {
		return v
	}
	return ""
}

package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/idempotency"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
)

var idempotentMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Idempotency answers a retried mutation that carries the same
// Idempotency-Key from the stored outcome of the first attempt. Reusing a
// key with a different body is rejected with 422 and a retry that races
// the first attempt gets 409. When the store is unavailable the request is
// executed normally. Must run after ResolveActor so keys are per user.
func Idempotency(store idempotency.Store, ttl time.Duration, log *zap.Logger) echo.MiddlewareFunc {
	if store == nil {
		return passThrough
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			clientKey := req.Header.Get(HeaderIdempotencyKey)
			if clientKey == "" || !idempotentMethods[req.Method] {
				return next(c)
			}
			if len(clientKey) > maxIdempotencyKeyLen {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "Idempotency-Key is too long"})
			}

			var body []byte
			if req.Body != nil {
				b, err := io.ReadAll(req.Body)
				if err != nil {
					return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
				}
				body = b
				req.Body = io.NopCloser(bytes.NewReader(b))
			}

			uid := userID(c)
			// The concrete path, not the route template, so one key cannot
			// span two resources behind the same route.
			key := idempotency.Key(uid, req.Method, req.URL.Path, clientKey)
			hash := idempotency.RequestHash(body)
			rec := idempotency.NewPending(key, uid, hash, time.Now().UTC(), ttl)
			ctx := req.Context()

			existing, err := store.Reserve(ctx, rec)
			if err != nil {
				log.Warn("idempotency store unavailable, executing request",
					zap.String("path", req.URL.Path), zap.Error(err))
				return next(c)
			}
			if existing != nil {
				switch {
				case existing.RequestHash != hash:
					return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "Idempotency-Key was used with a different request"})
				case existing.Status != idempotency.StatusCompleted:
					return c.JSON(http.StatusConflict, echo.Map{"error": "a request with this Idempotency-Key is in progress"})
				}
				h := c.Response().Header()
				if existing.ContentType != "" {
					h.Set(echo.HeaderContentType, existing.ContentType)
				}
				h.Set(headerReplayed, "true")
				return c.Blob(existing.ResponseStatus, existing.ContentType, existing.ResponseBody)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw

			herr := next(c)
			status := cw.status
			if herr != nil {
				var he *echo.HTTPError
				if errors.As(herr, &he) {
					status = he.Code
				} else {
					status = http.StatusInternalServerError
				}
			}

			bg := context.WithoutCancel(ctx)
			if herr != nil || status >= http.StatusInternalServerError {
				if err := store.Release(bg, key); err != nil {
					log.Warn("release idempotency key", zap.Error(err))
				}
				return herr
			}
			rec.Status = idempotency.StatusCompleted
			rec.ResponseStatus = status
			rec.ContentType = c.Response().Header().Get(echo.HeaderContentType)
			rec.ResponseBody = append([]byte(nil), cw.buf.Bytes()...)
			if err := store.Complete(bg, rec); err != nil {
				log.Warn("complete idempotency key", zap.Error(err))
			}
			return nil
		}
	}
}

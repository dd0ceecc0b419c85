package main

import (
	"errors"
	"net/http"

	"adslots/internal/allocator"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.logger.Warnw("forbidden", "method", r.Method, "path", r.URL.Path)

	writeJSONError(w, http.StatusForbidden, "forbidden")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusNotFound, "not found")
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)

	w.Header().Set("Retry-After", retryAfter)

	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// allocatorStatus maps an allocator error kind to its HTTP status.
func allocatorStatus(kind allocator.Kind) int {
	switch kind {
	case allocator.KindValidation:
		return http.StatusBadRequest
	case allocator.KindConflict:
		return http.StatusConflict
	case allocator.KindPaymentNotCompleted:
		return http.StatusPaymentRequired
	case allocator.KindPaymentProvider:
		return http.StatusBadGateway
	case allocator.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// allocatorErrorResponse writes a typed allocator failure with its code.
// data, when set, rides along so a client still learns the booking id of a
// hold whose payment initiation failed.
func (app *application) allocatorErrorResponse(w http.ResponseWriter, r *http.Request, err error, data any) {
	var aerr *allocator.Error
	if !errors.As(err, &aerr) {
		app.internalServerError(w, r, err)
		return
	}

	status := allocatorStatus(aerr.Kind)
	if status >= http.StatusInternalServerError {
		app.logger.Errorw("allocator error", "method", r.Method, "path", r.URL.Path, "code", aerr.Code, "error", err.Error())
	} else {
		app.logger.Warnw("allocator rejected request", "method", r.Method, "path", r.URL.Path, "code", aerr.Code, "error", err.Error())
	}

	writeJSON(w, status, &errorEnvelope{
		Success: false,
		Message: aerr.Message,
		Status:  status,
		Code:    aerr.Code,
		Data:    data,
	})
}

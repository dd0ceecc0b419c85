package main

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adslots/internal/allocator"
	"adslots/internal/payments"
)

type returnResult string

const (
	returnSuccess returnResult = "success"
	returnFailed  returnResult = "failed"
	returnPending returnResult = "pending"
)

// appReturn is everything the mobile app needs to pick the right screen
// after a provider sends the browser back.
type appReturn struct {
	Result    returnResult
	BookingID int64
	Provider  payments.Provider
	Reference string
	Outcome   string
	Reason    string
}

func (a appReturn) query() url.Values {
	q := url.Values{}
	q.Set("result", string(a.Result))
	if a.BookingID > 0 {
		q.Set("booking_id", strconv.FormatInt(a.BookingID, 10))
	}
	if a.Provider != "" {
		q.Set("provider", strings.ToLower(string(a.Provider)))
	}
	if a.Reference != "" {
		q.Set("ref", a.Reference)
	}
	if a.Outcome != "" {
		q.Set("status", a.Outcome)
	}
	if a.Reason != "" {
		q.Set("reason", a.Reason)
	}
	return q
}

var returnPage = template.Must(template.New("return").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Returning to app…</title>
    <style>
      body { font-family: system-ui, -apple-system, Segoe UI, Roboto; padding: 24px; }
      .btn { display: inline-block; padding: 12px 16px; border-radius: 10px; background:#111; color:#fff; text-decoration:none; }
      .muted { opacity: 0.7; margin-top: 12px; }
    </style>
  </head>
  <body>
    <h3>Returning to the app…</h3>
    <p class="muted">If you are not redirected automatically, tap the button below.</p>
    <p><a class="btn" href="{{.DeepLink}}">Open in app</a></p>
    <p class="muted">Or continue on the web:</p>
    <p><a href="{{.WebFallback}}">{{.WebFallback}}</a></p>
    <script>
      window.location.href = "{{.DeepLink}}";
      setTimeout(function() { window.location.href = "{{.WebFallback}}"; }, 1200);
    </script>
  </body>
</html>`))

// redirectToAppReturn serves an HTML page that opens the app through its
// deep link and falls back to the web frontend. Custom-scheme 302s are not
// followed reliably by in-app browsers.
func (app *application) redirectToAppReturn(w http.ResponseWriter, ret appReturn) {
	q := ret.query().Encode()

	deepLink := template.URL(fmt.Sprintf("%s://payments/return?%s", app.config.AppScheme, q))
	webFallback := template.URL(fmt.Sprintf("%s/payments/return?%s", strings.TrimRight(app.config.FrontendURL, "/"), q))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.WriteHeader(http.StatusOK)

	if err := returnPage.Execute(w, map[string]any{
		"DeepLink":    deepLink,
		"WebFallback": webFallback,
	}); err != nil {
		app.logger.Errorw("render return page", "error", err)
	}
}

// confirmReturn audits the redirect and confirms the booking behind ref.
func (app *application) confirmReturn(ctx context.Context, provider payments.Provider, ref string, redirect any) appReturn {
	ret := appReturn{Provider: provider, Reference: ref}

	b, err := app.allocator.BookingByReference(ctx, provider, ref)
	if err != nil {
		ret.Result = returnFailed
		ret.Reason = "booking_not_found"
		if !errors.Is(err, allocator.ErrNotFound) {
			app.logger.Errorw("booking lookup failed", "provider", provider, "ref", ref, "error", err)
			ret.Result = returnPending
			ret.Reason = "lookup_failed"
		}
		return ret
	}
	ret.BookingID = b.ID

	app.allocator.RecordRedirect(ctx, b.ID, redirect)

	res, err := app.allocator.Confirm(ctx, b.ID, 0, ref)
	if err == nil {
		ret.Result = returnSuccess
		ret.Outcome = string(res.Outcome)
		return ret
	}

	var aerr *allocator.Error
	switch {
	case errors.As(err, &aerr) && aerr.Kind == allocator.KindPaymentProvider:
		// the provider could not be reached; the app can retry the confirm
		ret.Result = returnPending
	case errors.As(err, &aerr):
		ret.Result = returnFailed
	default:
		app.logger.Errorw("payment return confirm failed", "booking_id", b.ID, "error", err)
		ret.Result = returnPending
	}
	if aerr != nil {
		ret.Reason = aerr.Code
	}
	return ret
}

// khaltiReturnHandler godoc
//
//	@Summary		Khalti browser return
//	@Description	Khalti appends pidx and its view of the status; the status is re-checked through the lookup API before anything changes.
//	@Tags			Payments
//	@Produce		html
//	@Param			pidx	query	string	true	"Khalti payment id"
//	@Success		200
//	@Router			/payments/khalti/return [get]
func (app *application) khaltiReturnHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	q := r.URL.Query()
	pidx := strings.TrimSpace(q.Get("pidx"))
	if pidx == "" {
		app.redirectToAppReturn(w, appReturn{Result: returnFailed, Provider: payments.Khalti, Reason: "missing_pidx"})
		return
	}

	app.redirectToAppReturn(w, app.confirmReturn(ctx, payments.Khalti, pidx, q))
}

// esewaReturnHandler godoc
//
//	@Summary		eSewa browser return
//	@Description	Verifies the signed base64 payload, then confirms through the transaction status API.
//	@Tags			Payments
//	@Produce		html
//	@Param			data	query	string	true	"Base64 JSON payload signed by eSewa"
//	@Success		200
//	@Router			/payments/esewa/return [get]
func (app *application) esewaReturnHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	if app.esewa == nil {
		app.redirectToAppReturn(w, appReturn{Result: returnFailed, Provider: payments.Esewa, Reason: "provider_disabled"})
		return
	}

	data := strings.TrimSpace(r.URL.Query().Get("data"))
	if data == "" {
		app.redirectToAppReturn(w, appReturn{Result: returnFailed, Provider: payments.Esewa, Reason: "missing_data"})
		return
	}

	p, err := app.esewa.DecodeReturn(data)
	if err != nil {
		app.logger.Warnw("esewa return rejected", "error", err)
		reason := "invalid_payload"
		if errors.Is(err, payments.ErrBadSignature) {
			reason = "bad_signature"
		}
		app.redirectToAppReturn(w, appReturn{Result: returnFailed, Provider: payments.Esewa, Reason: reason})
		return
	}

	app.redirectToAppReturn(w, app.confirmReturn(ctx, payments.Esewa, p.TransactionUUID, p))
}

// paymentWebhookHandler godoc
//
//	@Summary		Provider webhook
//	@Description	Records the callback and confirms the booking behind it. Responds 200 once handled so the provider stops retrying; 5xx asks for a retry.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Param			provider	query	string	true	"khalti or esewa"
//	@Success		200
//	@Router			/payments/webhook [post]
func (app *application) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 20*time.Second)
	defer cancel()

	payload, err := webhookPayload(w, r)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	provider := payments.Provider(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("provider"))))
	if provider == "" {
		provider = payments.Provider(strings.ToUpper(payload["provider"]))
	}

	// Khalti identifies a payment by pidx, eSewa by transaction_uuid
	var ref string
	switch provider {
	case payments.Khalti:
		ref = payload["pidx"]
	case payments.Esewa:
		ref = payload["transaction_uuid"]
	default:
		app.badRequestResponse(w, r, fmt.Errorf("unsupported provider: %q", provider))
		return
	}
	if ref == "" {
		app.badRequestResponse(w, r, fmt.Errorf("missing provider identifier (pidx/transaction_uuid)"))
		return
	}

	b, err := app.allocator.BookingByReference(ctx, provider, ref)
	if err != nil {
		if errors.Is(err, allocator.ErrNotFound) {
			app.notFoundResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}
	app.allocator.RecordWebhook(ctx, b.ID, payload)

	res, err := app.allocator.Confirm(ctx, b.ID, 0, ref)
	if err != nil {
		if errors.Is(err, allocator.ErrPaymentProvider) {
			app.allocatorErrorResponse(w, r, err, nil)
			return
		}
		// a definite answer; acknowledge so the provider stops retrying
		app.logger.Infow("webhook acknowledged without activation", "booking_id", b.ID, "provider", provider, "error", err)
		app.jsonResponse(w, http.StatusOK, map[string]any{"booking_id": b.ID, "handled": true})
		return
	}

	app.jsonResponse(w, http.StatusOK, res)
}

// webhookPayload flattens a JSON or form-encoded callback body, falling
// back to the query string.
func webhookPayload(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}

	if r.ContentLength == 0 {
		return out, nil
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		if err := readJSON(w, r, &body); err != nil {
			return nil, fmt.Errorf("invalid webhook payload: %w", err)
		}
		for k, v := range body {
			if v != nil {
				out[k] = fmt.Sprint(v)
			}
		}
		return out, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	for k, v := range r.PostForm {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

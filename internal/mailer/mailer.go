package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

const (
	FromName   = "Ad Slots"
	maxRetries = 3

	BookingActivatedTemplate      = "booking_activated.tmpl"
	BookingCanceledTemplate       = "booking_canceled.tmpl"
	AdvertisementRejectedTemplate = "advertisement_rejected.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(templateFile, username, email string, data any) (int, error)
}

// render executes the "subject" and "body" blocks of a template.
func render(templateFile string, data any) (string, string, error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return "", "", fmt.Errorf("parse %s: %w", templateFile, err)
	}

	subject := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(subject, "subject", data); err != nil {
		return "", "", err
	}

	body := new(bytes.Buffer)
	if err := tmpl.ExecuteTemplate(body, "body", data); err != nil {
		return "", "", err
	}
	return subject.String(), body.String(), nil
}

type BookingData struct {
	Username  string
	BookingID int64
	Slot      int
	VIP       bool
	EndsAt    string
	Reason    string
	Paid      bool
}

type RejectionData struct {
	Username   string
	ServerName string
	Reason     string
}

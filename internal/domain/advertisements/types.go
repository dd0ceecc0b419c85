package advertisements

import (
	"errors"
	"slices"
	"strings"
	"time"
)

const QueryTimeoutDuration = time.Second * 5

var (
	ErrNotFound    = errors.New("advertisement not found")
	ErrOwnerExists = errors.New("owner already has an advertisement")
)

type Status string

const (
	StatusPendingReview Status = "PENDING_REVIEW"
	StatusApproved      Status = "APPROVED"
	StatusRejected      Status = "REJECTED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Content is the part of an advertisement the owner controls.
type Content struct {
	ServerName    string   `json:"server_name" validate:"required,max=80"`
	ServerAddress string   `json:"server_address" validate:"required,max=255"`
	ServerVersion string   `json:"server_version" validate:"max=40"`
	Description   string   `json:"description" validate:"max=2000"`
	Links         []string `json:"links" validate:"max=5,dive,url"`
	BannerURL     string   `json:"banner_url" validate:"omitempty,url"`
}

// Normalize trims whitespace so cosmetic edits do not count as a change.
func (c Content) Normalize() Content {
	out := Content{
		ServerName:    strings.TrimSpace(c.ServerName),
		ServerAddress: strings.TrimSpace(c.ServerAddress),
		ServerVersion: strings.TrimSpace(c.ServerVersion),
		Description:   strings.TrimSpace(c.Description),
		BannerURL:     strings.TrimSpace(c.BannerURL),
	}
	for _, l := range c.Links {
		if l = strings.TrimSpace(l); l != "" {
			out.Links = append(out.Links, l)
		}
	}
	return out
}

func (c Content) Equal(o Content) bool {
	return c.ServerName == o.ServerName &&
		c.ServerAddress == o.ServerAddress &&
		c.ServerVersion == o.ServerVersion &&
		c.Description == o.Description &&
		c.BannerURL == o.BannerURL &&
		slices.Equal(c.Links, o.Links)
}

type Advertisement struct {
	ID               int64     `json:"id"`
	OwnerID          int64     `json:"owner_id"`
	OwnerDisplayName string    `json:"owner_display_name"`
	Content          Content   `json:"content"`
	Status           Status    `json:"status"`
	RejectionReason  *string   `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (a *Advertisement) Approved() bool {
	return a != nil && a.Status == StatusApproved
}

// NextStatus is the moderation status an owner's resubmission lands in.
// Only an approved advertisement resubmitted unchanged stays approved.
func NextStatus(current *Advertisement, content Content) Status {
	if current != nil && current.Status == StatusApproved && current.Content.Equal(content) {
		return StatusApproved
	}
	return StatusPendingReview
}

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

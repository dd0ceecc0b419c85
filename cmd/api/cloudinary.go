package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const bannerFolder = "ad-banners"

var errUploadsDisabled = errors.New("image uploads are not configured")

// uploadBanner stores an advertisement banner under a caller-chosen public ID
// and returns its HTTPS URL.
func (app *application) uploadBanner(ctx context.Context, file io.Reader, publicID string) (string, error) {
	if app.cld == nil {
		return "", errUploadsDisabled
	}

	resp, err := app.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:    bannerFolder,
		PublicID:  publicID,
		Overwrite: api.Bool(false),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	return resp.SecureURL, nil
}

func (app *application) deleteBanner(ctx context.Context, bannerURL string) error {
	if app.cld == nil || bannerURL == "" {
		return nil
	}

	publicID, err := publicIDFromURL(bannerURL)
	if err != nil {
		return err
	}

	_, err = app.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	return nil
}

// publicIDFromURL turns .../upload/v1712/ad-banners/ad_4_banner.png into
// ad-banners/ad_4_banner.
func publicIDFromURL(photoURL string) (string, error) {
	parsed, err := url.Parse(photoURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}

	parts := strings.Split(parsed.Path, "/")
	for i, part := range parts {
		if part != "upload" || i+1 >= len(parts) {
			continue
		}
		rest := parts[i+1:]
		if len(rest) > 1 && isVersionSegment(rest[0]) {
			rest = rest[1:]
		}
		id := strings.Join(rest, "/")
		return strings.TrimSuffix(id, path.Ext(id)), nil
	}

	return "", errors.New("failed to extract public ID from URL")
}

func isVersionSegment(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, c := range s[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxBannerBytes = 5 << 20

var bannerTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// myAdvertisementHandler godoc
//
//	@Summary		Get the caller's advertisement
//	@Description	Includes the moderation status and, when rejected, the reason.
//	@Tags			Advertisements
//	@Produce		json
//	@Success		200	{object}	advertisements.Advertisement
//	@Failure		404	{object}	error	"ADVERTISEMENT_NOT_FOUND"
//	@Security		ApiKeyAuth
//	@Router			/advertisements/me [get]
func (app *application) myAdvertisementHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	ad, err := app.allocator.OwnAdvertisement(ctx, user.ID)
	if err != nil {
		app.allocatorErrorResponse(w, r, err, nil)
		return
	}

	app.jsonResponse(w, http.StatusOK, ad)
}

// uploadBannerHandler godoc
//
//	@Summary		Upload a banner image
//	@Description	Stores the image and returns its URL for the advertisement's banner_url. Max 5MB; jpg, png or webp.
//	@Tags			Advertisements
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			banner	formData	file	true	"Banner image"
//	@Success		201		{object}	map[string]string
//	@Failure		400		{object}	error
//	@Failure		503		{object}	error	"Uploads not configured"
//	@Security		ApiKeyAuth
//	@Router			/advertisements/banner [post]
func (app *application) uploadBannerHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	if user == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("unauthorized request"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBannerBytes+1024)
	if err := r.ParseMultipartForm(maxBannerBytes); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("banner must be a multipart upload under 5MB"))
		return
	}

	file, header, err := r.FormFile("banner")
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("missing banner file"))
		return
	}
	defer file.Close()

	if header.Size > maxBannerBytes {
		app.badRequestResponse(w, r, fmt.Errorf("banner must be under 5MB"))
		return
	}

	sniff := make([]byte, 512)
	n, _ := io.ReadFull(file, sniff)
	if !bannerTypes[http.DetectContentType(sniff[:n])] {
		app.badRequestResponse(w, r, fmt.Errorf("banner must be a jpg, png or webp image"))
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	publicID := fmt.Sprintf("ad_%d_banner_%d", user.ID, time.Now().UnixNano())
	bannerURL, err := app.uploadBanner(ctx, file, publicID)
	if err != nil {
		if errors.Is(err, errUploadsDisabled) {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusCreated, map[string]string{"banner_url": bannerURL})
}

package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/speps/go-hashids/v2"
)

const referencePrefix = "AD-"

var ErrBadReference = errors.New("invalid booking reference")

// References turns booking ids into opaque public order references.
type References struct {
	h *hashids.HashID
}

func NewReferences(salt string) (*References, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	hd.Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, fmt.Errorf("hashids: %w", err)
	}
	return &References{h: h}, nil
}

func (r *References) Encode(bookingID int64) (string, error) {
	s, err := r.h.EncodeInt64([]int64{bookingID})
	if err != nil {
		return "", err
	}
	return referencePrefix + s, nil
}

func (r *References) Decode(ref string) (int64, error) {
	s, ok := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(ref)), referencePrefix)
	if !ok {
		return 0, ErrBadReference
	}
	ids, err := r.h.DecodeInt64WithError(s)
	if err != nil || len(ids) != 1 {
		return 0, ErrBadReference
	}
	return ids[0], nil
}

package notifications

import (
	"context"

	"github.com/9ssi7/exponent"
)

// PushSender is the slice of the Expo client the dispatcher needs.
type PushSender interface {
	Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error)
}

// NewExpoSender returns an Expo push client. An empty access token is
// accepted for projects without enhanced push security.
func NewExpoSender(accessToken string) PushSender {
	if accessToken == "" {
		return exponent.NewClient()
	}
	return exponent.NewClient(exponent.WithAccessToken(accessToken))
}

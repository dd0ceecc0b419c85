package advertisements

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextStatus(t *testing.T) {
	content := Content{ServerName: "Skyblock", ServerAddress: "play.sky.example", Links: []string{"https://sky.example"}}

	t.Run("first submission goes to review", func(t *testing.T) {
		assert.Equal(t, StatusPendingReview, NextStatus(nil, content))
	})

	t.Run("approved and unchanged stays approved", func(t *testing.T) {
		current := &Advertisement{Status: StatusApproved, Content: content}
		assert.Equal(t, StatusApproved, NextStatus(current, content))
	})

	t.Run("approved but edited goes back to review", func(t *testing.T) {
		current := &Advertisement{Status: StatusApproved, Content: content}
		edited := content
		edited.Links = []string{"https://sky.example", "https://discord.example"}
		assert.Equal(t, StatusPendingReview, NextStatus(current, edited))
	})

	t.Run("rejected resubmission goes back to review", func(t *testing.T) {
		current := &Advertisement{Status: StatusRejected, Content: content}
		assert.Equal(t, StatusPendingReview, NextStatus(current, content))
	})
}

func TestContentNormalize(t *testing.T) {
	raw := Content{
		ServerName:    "  Skyblock ",
		ServerAddress: "play.sky.example\n",
		Links:         []string{" https://sky.example ", "", "   "},
	}

	got := raw.Normalize()
	assert.Equal(t, "Skyblock", got.ServerName)
	assert.Equal(t, "play.sky.example", got.ServerAddress)
	assert.Equal(t, []string{"https://sky.example"}, got.Links)
	assert.True(t, got.Equal(Content{ServerName: "Skyblock", ServerAddress: "play.sky.example", Links: []string{"https://sky.example"}}))
}

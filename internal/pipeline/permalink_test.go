package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orderscout/orderscout/internal/feed"
	"github.com/orderscout/orderscout/internal/types"
)

func TestPermalinkPublicUsername(t *testing.T) {
	chat := feed.Chat{ID: "-1001234", Username: "freelance_ru", Kind: types.ChatSupergroup}
	assert.Equal(t, "https://t.me/freelance_ru/42", Permalink(chat, "42"))
}

func TestPermalinkPrivateSupergroup(t *testing.T) {
	chat := feed.Chat{ID: "-1001234567890", Kind: types.ChatSupergroup}
	assert.Equal(t, "https://t.me/c/1234567890/42", Permalink(chat, "42"))
}

func TestPermalinkChannelBareMinus(t *testing.T) {
	chat := feed.Chat{ID: "-987654", Kind: types.ChatChannel}
	assert.Equal(t, "https://t.me/c/987654/7", Permalink(chat, "7"))
}

func TestPermalinkNoneForGroupsAndPrivate(t *testing.T) {
	assert.Empty(t, Permalink(feed.Chat{ID: "-4567", Kind: types.ChatGroup}, "1"))
	assert.Empty(t, Permalink(feed.Chat{ID: "42", Kind: types.ChatPrivate}, "1"))
}

func TestPermalinkDegenerateID(t *testing.T) {
	assert.Empty(t, Permalink(feed.Chat{ID: "-100", Kind: types.ChatSupergroup}, "1"))
}

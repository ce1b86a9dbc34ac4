package pipeline

import (
	"strings"

	"github.com/orderscout/orderscout/internal/feed"
	"github.com/orderscout/orderscout/internal/types"
)

// Permalink builds a t.me link back to the source message. Public chats
// link by username; private supergroups and channels use the /c/ form
// with the -100 marker stripped from the chat id. Plain groups and
// private dialogs have no web permalink.
func Permalink(chat feed.Chat, messageID string) string {
	if chat.Username != "" {
		return "https://t.me/" + chat.Username + "/" + messageID
	}
	if chat.Kind != types.ChatSupergroup && chat.Kind != types.ChatChannel {
		return ""
	}
	id := strings.TrimPrefix(chat.ID, "-100")
	id = strings.TrimPrefix(id, "-")
	if id == "" {
		return ""
	}
	return "https://t.me/c/" + id + "/" + messageID
}

package feed

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/rs/zerolog"

	"github.com/orderscout/orderscout/internal/types"
)

// TelegramConfig carries the MTProto credentials and session location.
type TelegramConfig struct {
	APIID       int
	APIHash     string
	Phone       string
	Password    string // 2FA secret, optional
	SessionPath string
}

// TelegramSource streams new and channel messages from a user session.
// Outgoing messages and bot messages are filtered here, before the
// pipeline ever sees them.
type TelegramSource struct {
	cfg    TelegramConfig
	logger zerolog.Logger
}

// NewTelegramSource validates the credentials.
func NewTelegramSource(cfg TelegramConfig, logger zerolog.Logger) (*TelegramSource, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("feed: telegram api id and hash are required")
	}
	if cfg.Phone == "" {
		return nil, fmt.Errorf("feed: telegram phone is required")
	}
	if cfg.SessionPath == "" {
		cfg.SessionPath = "session.json"
	}
	return &TelegramSource{
		cfg:    cfg,
		logger: logger.With().Str("component", "telegram_feed").Logger(),
	}, nil
}

// Run connects, authenticates if needed, and dispatches updates to
// handler until ctx is cancelled.
func (s *TelegramSource) Run(ctx context.Context, handler Handler) error {
	dispatcher := tg.NewUpdateDispatcher()

	client := telegram.NewClient(s.cfg.APIID, s.cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: s.cfg.SessionPath},
		UpdateHandler:  dispatcher,
	})

	var selfID int64

	dispatcher.OnNewMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		if msg, ok := convert(e, u.Message, selfID); ok {
			handler(ctx, msg)
		}
		return nil
	})
	dispatcher.OnNewChannelMessage(func(ctx context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		if msg, ok := convert(e, u.Message, selfID); ok {
			handler(ctx, msg)
		}
		return nil
	})

	flow := auth.NewFlow(
		auth.Constant(s.cfg.Phone, s.cfg.Password, auth.CodeAuthenticatorFunc(askCode)),
		auth.SendCodeOptions{},
	)

	return client.Run(ctx, func(ctx context.Context) error {
		if err := client.Auth().IfNecessary(ctx, flow); err != nil {
			return fmt.Errorf("telegram auth: %w", err)
		}
		me, err := client.Self(ctx)
		if err != nil {
			return fmt.Errorf("resolve self: %w", err)
		}
		selfID = me.ID

		s.logger.Info().
			Int64("user_id", me.ID).
			Str("username", me.Username).
			Msg("Telegram session established")

		<-ctx.Done()
		return ctx.Err()
	})
}

func askCode(ctx context.Context, sentCode *tg.AuthSentCode) (string, error) {
	fmt.Print("Enter the code sent to your Telegram account: ")
	code, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(code), nil
}

// convert reduces a raw update to a feed.Message. Returns ok=false for
// anything the pipeline should never see: non-message updates, outgoing
// messages, bot authors, and empty bodies.
func convert(e tg.Entities, m tg.MessageClass, selfID int64) (Message, bool) {
	msg, ok := m.(*tg.Message)
	if !ok || msg.Out {
		return Message{}, false
	}

	body := msg.Message
	if strings.TrimSpace(body) == "" {
		return Message{}, false
	}

	chat, ok := resolveChat(e, msg.PeerID)
	if !ok {
		return Message{}, false
	}

	author := resolveAuthor(e, msg, selfID)
	if author.IsBot || author.IsSelf {
		return Message{}, false
	}

	_, forwarded := msg.GetFwdFrom()

	return Message{
		ID:        strconv.Itoa(msg.ID),
		Chat:      chat,
		Author:    author,
		Body:      body,
		HasMedia:  msg.Media != nil,
		Forwarded: forwarded,
		Time:      timeOf(msg.Date),
	}, true
}

func resolveChat(e tg.Entities, peer tg.PeerClass) (Chat, bool) {
	switch p := peer.(type) {
	case *tg.PeerChat:
		c := Chat{ID: strconv.FormatInt(p.ChatID, 10), Kind: types.ChatGroup}
		if g, ok := e.Chats[p.ChatID]; ok {
			c.Title = g.Title
		}
		return c, true
	case *tg.PeerChannel:
		c := Chat{ID: strconv.FormatInt(p.ChannelID, 10), Kind: types.ChatChannel}
		if ch, ok := e.Channels[p.ChannelID]; ok {
			c.Title = ch.Title
			c.Username = ch.Username
			if ch.Megagroup {
				c.Kind = types.ChatSupergroup
			}
		}
		return c, true
	case *tg.PeerUser:
		c := Chat{ID: strconv.FormatInt(p.UserID, 10), Kind: types.ChatPrivate}
		if u, ok := e.Users[p.UserID]; ok {
			c.Title = displayName(u)
		}
		return c, true
	default:
		return Chat{}, false
	}
}

func resolveAuthor(e tg.Entities, msg *tg.Message, selfID int64) Author {
	if from, ok := msg.FromID.(*tg.PeerUser); ok {
		a := Author{ID: strconv.FormatInt(from.UserID, 10)}
		if u, found := e.Users[from.UserID]; found {
			a.Name = displayName(u)
			a.IsBot = u.Bot
		}
		a.IsSelf = selfID != 0 && from.UserID == selfID
		return a
	}
	// Channel posts carry no user author; attribute to the channel.
	if ch, ok := msg.PeerID.(*tg.PeerChannel); ok {
		a := Author{ID: strconv.FormatInt(ch.ChannelID, 10)}
		if c, found := e.Channels[ch.ChannelID]; found {
			a.Name = c.Title
		}
		return a
	}
	return Author{}
}

func timeOf(unix int) time.Time {
	return time.Unix(int64(unix), 0).UTC()
}

func displayName(u *tg.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

package tgbot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/okoskine/inkwash/internal/imaging"
	"github.com/okoskine/inkwash/internal/studio"
)

// Bot is a Telegram front-end for the studio: the same session
// controller driven from chat messages instead of the browser. One
// studio session per chat.
type Bot struct {
	tg       *tgbotapi.BotAPI
	registry *studio.Registry
	fetcher  *imaging.Fetcher
}

// New creates the gateway bot.
func New(tg *tgbotapi.BotAPI, registry *studio.Registry) *Bot {
	return &Bot{
		tg:       tg,
		registry: registry,
		fetcher:  imaging.NewFetcher(),
	}
}

// Run consumes updates until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.tg.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping gateway update loop")
			b.tg.StopReceivingUpdates()
			wg.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				wg.Wait()
				return nil
			}
			wg.Add(1)
			go func(u tgbotapi.Update) {
				defer wg.Done()
				b.handleUpdate(ctx, u)
			}(update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	session := b.registry.Get(strconv.FormatInt(msg.Chat.ID, 10))

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg, session)
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg, session)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, session *studio.Session) {
	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, "Send a style reference photo with caption \"style\", "+
			"a line-art photo with caption \"line\", then /render. "+
			"Also: /tier low|medium|high, /strength 0-100, /reset, /status.")
	case "status":
		st := session.Snapshot()
		b.reply(msg.Chat.ID, fmt.Sprintf("state: %s\nreference: %v\nline-art: %v (bucket %s)\nresult: %v\ntier: %s, strength: %d",
			st.State, st.HasReference, st.HasLineArt, st.Bucket, st.HasResult, st.Tier, st.Strength))
	case "reset":
		if err := session.Reset(); err != nil {
			b.replyError(msg.Chat.ID, err)
			return
		}
		b.reply(msg.Chat.ID, "Session cleared.")
	case "tier":
		tier, err := studio.ParseTier(strings.TrimSpace(msg.CommandArguments()))
		if err != nil {
			b.reply(msg.Chat.ID, "Usage: /tier low|medium|high")
			return
		}
		if err := session.SetTier(tier); err != nil {
			b.replyError(msg.Chat.ID, err)
			return
		}
		b.reply(msg.Chat.ID, fmt.Sprintf("Resolution tier set to %s.", tier))
	case "strength":
		n, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
		if err != nil {
			b.reply(msg.Chat.ID, "Usage: /strength 0-100")
			return
		}
		session.SetStrength(n)
		b.reply(msg.Chat.ID, fmt.Sprintf("Style strength set to %d.", session.Snapshot().Strength))
	case "render":
		b.render(ctx, msg.Chat.ID, session)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message, session *studio.Session) {
	// Largest size is last in the slice
	photo := msg.Photo[len(msg.Photo)-1]

	url, err := b.tg.GetFileDirectURL(photo.FileID)
	if err != nil {
		b.replyError(msg.Chat.ID, fmt.Errorf("failed to resolve photo: %w", err))
		return
	}
	raw, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	caption := strings.ToLower(strings.TrimSpace(msg.Caption))
	asLineArt := caption == "line" || caption == "lineart" ||
		(caption != "style" && session.Snapshot().HasReference)

	if asLineArt {
		if err := session.SetLineArt(raw); err != nil {
			b.replyError(msg.Chat.ID, err)
			return
		}
		st := session.Snapshot()
		b.reply(msg.Chat.ID, fmt.Sprintf("Line-art stored (aspect bucket %s). /render when ready.", st.Bucket))
		return
	}

	if err := session.SetReference(raw); err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.reply(msg.Chat.ID, "Analyzing style reference…")
	descriptor, err := session.AuditStyle(ctx)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if descriptor == "" {
		b.reply(msg.Chat.ID, "Style audit finished, but the model returned an empty description.")
		return
	}
	b.reply(msg.Chat.ID, "Style captured:\n"+descriptor)
}

func (b *Bot) render(ctx context.Context, chatID int64, session *studio.Session) {
	issued, err := session.Synthesize(ctx)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if !issued {
		b.reply(chatID, "Nothing to render yet: send a style reference and a line-art image first.")
		return
	}

	result, ok := session.Result()
	if !ok {
		b.reply(chatID, "Render finished without an image.")
		return
	}

	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "render.png",
		Bytes: result.Data,
	})
	if _, err := b.tg.Send(photo); err != nil {
		log.Error().Err(err).Int64("chatId", chatID).Msg("failed to send rendered photo")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tg.Send(msg); err != nil {
		log.Error().Err(err).Int64("chatId", chatID).Msg("failed to send message")
	}
}

// replyError maps the error taxonomy to chat-friendly messages.
func (b *Bot) replyError(chatID int64, err error) {
	var decodeErr *imaging.DecodeError
	var credErr *studio.CredentialError

	switch {
	case errors.As(err, &decodeErr):
		b.reply(chatID, "That image could not be decoded. Please send a PNG or JPEG.")
	case errors.Is(err, studio.ErrBusy):
		b.reply(chatID, "Still working on the previous request, try again in a moment.")
	case errors.Is(err, studio.ErrNoReference):
		b.reply(chatID, "Send a style reference photo first.")
	case errors.Is(err, studio.ErrEmptyResult):
		b.reply(chatID, "The model responded without an image. Try again or adjust the inputs.")
	case errors.As(err, &credErr):
		b.reply(chatID, "The Gemini API key was rejected. Please check the configured credential.")
	default:
		b.reply(chatID, "Something went wrong: "+err.Error())
	}
	log.Warn().Err(err).Int64("chatId", chatID).Msg("gateway error")
}

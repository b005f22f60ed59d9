package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/highroller-bot/highroller/internal/command"
	"github.com/highroller-bot/highroller/internal/game"
	"github.com/highroller-bot/highroller/internal/pkg/config"
)

// Gateway connects the Telegram update stream to the command router. Each
// update is handled as an independent task; serialization of conflicting
// transitions happens at the ledger store, not here.
type Gateway struct {
	api      *tgbotapi.BotAPI
	router   *command.Router
	engine   *game.Engine
	registry *game.Registry
	notifier *Notifier
	cfg      *config.Config
}

// NewGateway wires the command table. It panics on a misconfigured table
// (duplicate command, empty arity interval): that is a programming error
// which must never reach serving.
func NewGateway(api *tgbotapi.BotAPI, engine *game.Engine, registry *game.Registry, notifier *Notifier, cfg *config.Config) *Gateway {
	g := &Gateway{
		api:      api,
		router:   command.NewRouter(),
		engine:   engine,
		registry: registry,
		notifier: notifier,
		cfg:      cfg,
	}
	g.registerCommands()
	return g
}

// Router exposes the dispatch table, mainly for the health endpoint and
// tests.
func (g *Gateway) Router() *command.Router { return g.router }

// Run consumes updates until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = g.cfg.Telegram.UpdateTimeout
	updates := g.api.GetUpdatesChan(u)

	slog.Info("gateway started", "account", g.api.Self.UserName)
	for {
		select {
		case <-ctx.Done():
			g.api.StopReceivingUpdates()
			slog.Info("gateway stopped")
			return
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			go g.handleMessage(ctx, update.Message)
		}
	}
}

func (g *Gateway) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	log := slog.With("correlation_id", uuid.NewString(), "from", msg.From.ID)

	args := command.Tokenize(text)
	if len(args) == 0 {
		return
	}
	// Telegram clients prepend a slash; the table is slash-less.
	args[0] = strings.ToLower(strings.TrimPrefix(args[0], "/"))

	// Replying to a challenge announcement with a bare "accept", "abort" or
	// "win" targets that challenge without typing its id.
	if msg.ReplyToMessage != nil && len(args) == 1 {
		switch args[0] {
		case "accept", "abort", "win":
			ch, err := g.engine.ChallengeByExternalRef(ctx, int64(msg.ReplyToMessage.MessageID))
			if err == nil {
				args = append(args, strconv.FormatInt(ch.ID, 10))
			}
		}
	}

	caller := g.callerFor(ctx, msg.From)
	reply := func(text string) error {
		_, err := g.api.Send(tgbotapi.NewMessage(msg.Chat.ID, text))
		return err
	}

	log.Info("evaluating command", "command", args[0], "args", len(args)-1)
	if err := g.router.Evaluate(ctx, args, caller, reply); err != nil {
		log.Warn("command failed", "command", args[0], "error", err)
		if replyErr := reply(userFacing(err)); replyErr != nil {
			log.Error("failed to send error reply", "error", replyErr)
		}
	}
}

// userFacing keeps storage details out of chat replies.
func userFacing(err error) string {
	if errors.Is(err, game.ErrStorageUnavailable) {
		return game.ErrStorageUnavailable.Error()
	}
	return err.Error()
}

func (g *Gateway) callerFor(ctx context.Context, from *tgbotapi.User) command.Caller {
	registered := false
	if _, err := g.registry.ByID(ctx, from.ID); err == nil {
		registered = true
	}
	return command.Caller{
		ID:         from.ID,
		Username:   from.UserName,
		Admin:      g.cfg.Game.IsAdmin(from.ID),
		Registered: registered,
	}
}

// announce posts a public challenge to the configured channel and returns
// the message id linking the row to the post.
func (g *Gateway) announce(draft *game.Draft, authorName string) (*int64, error) {
	text := fmt.Sprintf(
		"⚔️ %s challenges you! ⚔️\nbet: %d\nmap: %s\ntribe: %s\n\nReply to this message with \"accept\" to play.",
		authorName, draft.Bet(), draft.Map(), draft.Tribe())
	sent, err := g.api.Send(tgbotapi.NewMessage(g.cfg.Telegram.ChannelID, text))
	if err != nil {
		return nil, fmt.Errorf("failed to announce challenge: %w", err)
	}
	ref := int64(sent.MessageID)
	return &ref, nil
}

package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/highroller-bot/highroller/internal/game"
)

// Min interval between any two Telegram messages to avoid 429 Too Many
// Requests (~30/min per chat).
const telegramSendInterval = 2 * time.Second

const sendQueueSize = 256

type queuedMessage struct {
	chatID int64
	text   string
}

// Ensure Notifier implements game.Notifier
var _ game.Notifier = (*Notifier)(nil)

// Notifier delivers outcome messages to players over Telegram through an
// async queue, throttled so bursts (a timeout sweep aborting many
// challenges at once) don't trip the API rate limit. Player DMs go to the
// private chat with the player's id; Telegram makes those ids equal.
type Notifier struct {
	api *tgbotapi.BotAPI

	mu       sync.Mutex
	lastSend time.Time

	queue  chan queuedMessage
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNotifier starts the sender goroutine.
func NewNotifier(api *tgbotapi.BotAPI) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		api:    api,
		queue:  make(chan queuedMessage, sendQueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	n.wg.Add(1)
	go n.sender()
	return n
}

// Send queues a message. When the queue is full the message is dropped and
// logged; the ledger is already committed at that point, so delivery is
// best effort by design of the notification boundary.
func (n *Notifier) Send(chatID int64, text string) {
	select {
	case n.queue <- queuedMessage{chatID: chatID, text: text}:
	default:
		slog.Warn("notification queue full, dropping message", "chat", chatID)
	}
}

// NotifyPlayer sends a direct message to one player.
func (n *Notifier) NotifyPlayer(ctx context.Context, playerID int64, text string) {
	n.Send(playerID, text)
}

// NotifyParticipants messages everyone staking chips in the challenge.
func (n *Notifier) NotifyParticipants(ctx context.Context, ch *game.Challenge, text string) {
	n.Send(ch.AuthorID, text)
	if ch.AcceptedBy != nil {
		n.Send(*ch.AcceptedBy, text)
	}
}

// Close stops accepting new messages and drains what is already queued.
func (n *Notifier) Close() {
	n.cancel()
	n.wg.Wait()
}

func (n *Notifier) sender() {
	defer n.wg.Done()
	for {
		select {
		case msg := <-n.queue:
			n.deliver(msg)
		case <-n.ctx.Done():
			// Drain the queue so committed outcomes still reach players.
			for {
				select {
				case msg := <-n.queue:
					n.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(msg queuedMessage) {
	n.mu.Lock()
	wait := telegramSendInterval - time.Since(n.lastSend)
	if wait > 0 {
		time.Sleep(wait)
	}
	n.lastSend = time.Now()
	n.mu.Unlock()

	if _, err := n.api.Send(tgbotapi.NewMessage(msg.chatID, msg.text)); err != nil {
		// A player who never opened a chat with the bot can't receive DMs.
		slog.Warn("failed to deliver message", "chat", msg.chatID, "error", err)
	}
}

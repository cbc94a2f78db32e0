package telegram

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"

	"futures_control/internal/engine"
	"futures_control/internal/models"
)

// Bot is the Telegram side channel: position notifications plus a couple of
// emergency controls for when the web panel is out of reach.
type Bot struct {
	bot          *tele.Bot
	engine       *engine.Engine
	authorizedID int64
	startTime    time.Time
}

func NewBot(token string, authorizedID int64, engine *engine.Engine) (*Bot, error) {
	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		bot:          b,
		engine:       engine,
		authorizedID: authorizedID,
		startTime:    time.Now(),
	}

	bot.setupHandlers()
	return bot, nil
}

func (b *Bot) Start() {
	log.Println("📱 Telegram bot started")
	b.bot.Start()
}

func (b *Bot) setupHandlers() {
	// Single-operator bot, everyone else gets bounced
	b.bot.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender().ID != b.authorizedID {
				return c.Send("⛔ Unauthorized")
			}
			return next(c)
		}
	})

	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/state", b.handleState)

	b.bot.Handle(&btnState, b.handleState)
	b.bot.Handle(&btnCloseBTC, b.closeHandler("BTC"))
	b.bot.Handle(&btnCloseETH, b.closeHandler("ETH"))
	b.bot.Handle(&btnBack, b.handleStart)
}

var (
	btnState    = tele.Btn{Text: "📊 State", Unique: "state"}
	btnCloseBTC = tele.Btn{Text: "❌ Close BTC", Unique: "close_btc"}
	btnCloseETH = tele.Btn{Text: "❌ Close ETH", Unique: "close_eth"}
	btnBack     = tele.Btn{Text: "🔙 Back", Unique: "back"}
)

func (b *Bot) handleStart(c tele.Context) error {
	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnState),
		menu.Row(btnCloseBTC, btnCloseETH),
	)

	msg := fmt.Sprintf(`🤖 *Futures Control Bot*

🕐 Up since: %s

Open and manage positions from the web panel.
This channel carries notifications and emergency closes.`,
		b.startTime.Format("02.01 15:04:05"))

	return c.Send(msg, menu, tele.ModeMarkdown)
}

func (b *Bot) handleState(c tele.Context) error {
	snap := b.engine.State()

	var sb strings.Builder
	sb.WriteString("📊 *Current state*\n\n")

	if snap.RoundSize > 0 {
		sb.WriteString(fmt.Sprintf("💰 Base order size: %.2f USDT\n\n", snap.RoundSize))
	} else {
		sb.WriteString("💰 Base order size: not set\n\n")
	}

	coins := make([]string, 0, len(snap.Positions))
	for coin := range snap.Positions {
		coins = append(coins, coin)
	}
	sort.Strings(coins)

	if len(coins) == 0 {
		sb.WriteString("📋 No open positions")
	}
	for _, coin := range coins {
		p := snap.Positions[coin]
		emoji := "📈"
		if p.Side == models.SideShort {
			emoji = "📉"
		}
		sb.WriteString(fmt.Sprintf(`%s *%s %s*
   📊 Entry: %.4f | Adds: %d
   ➕ Next add: %.4f

`, emoji, p.Side, p.Symbol, p.EntryPrice, p.Adds, p.NextAddPrice))
	}

	menu := &tele.ReplyMarkup{}
	menu.Inline(
		menu.Row(btnCloseBTC, btnCloseETH),
		menu.Row(btnBack),
	)

	return c.Send(sb.String(), menu, tele.ModeMarkdown)
}

func (b *Bot) closeHandler(coin string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := b.engine.CloseMarket(ctx, coin); err != nil {
			return c.Send(fmt.Sprintf("⚠️ Close %s failed: %v", coin, err))
		}
		return c.Send(fmt.Sprintf("✅ %s closed at market", coin))
	}
}

func (b *Bot) SendPositionOpen(pos models.Position, qty float64) {
	emoji := "📈"
	if pos.Side == models.SideShort {
		emoji = "📉"
	}

	msg := fmt.Sprintf(`✅ *POSITION OPENED*

%s *%s %s*
💰 Size: %.2f USDT
📊 Entry: %.4f
🔢 Qty: %.8f
➕ Next add: %.4f

⏰ %s`,
		emoji, pos.Side, pos.Symbol,
		pos.BaseOrderSize, pos.EntryPrice, qty, pos.NextAddPrice,
		time.Now().Format("15:04:05"))

	b.send(msg)
}

func (b *Bot) SendAdd(pos models.Position) {
	msg := fmt.Sprintf(`➕ *ADD #%d*

*%s %s*
📊 Fill: %.4f
➕ Next add: %.4f

⏰ %s`,
		pos.Adds, pos.Side, pos.Symbol,
		pos.LastAddPrice, pos.NextAddPrice,
		time.Now().Format("15:04:05"))

	b.send(msg)
}

func (b *Bot) SendPositionClosed(coin, reason string) {
	msg := fmt.Sprintf(`🎯 *POSITION CLOSED*

*%s* | %s

⏰ %s`,
		coin, reason, time.Now().Format("15:04:05"))

	b.send(msg)
}

func (b *Bot) send(msg string) {
	if _, err := b.bot.Send(&tele.User{ID: b.authorizedID}, msg, tele.ModeMarkdown); err != nil {
		log.Printf("⚠️ Telegram send failed: %v", err)
	}
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"encore/internal/config"
	"encore/internal/economy"

	"github.com/bwmarrin/discordgo"
	"log/slog"
)

// Bot is a thin chat gateway: it parses prefix commands, resolves the
// Discord author to a stable user id, and delegates every decision to
// the core service. No economy rules live here.
type Bot struct {
	cfg     config.BotConfig
	log     *slog.Logger
	core    *economy.Service
	session *discordgo.Session
}

func New(cfg config.BotConfig, logger *slog.Logger, core *economy.Service) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	b := &Bot{cfg: cfg, log: logger, core: core, session: session}
	session.AddHandler(b.onMessage)
	return b, nil
}

func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.log.Info("bot connected", "prefix", b.cfg.CommandPrefix)
	<-ctx.Done()
	return b.session.Close()
}

func (b *Bot) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.cfg.CommandPrefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(content, b.cfg.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.core.EnsureProfile(ctx, m.Author.ID, m.Author.Username); err != nil {
		b.log.Error("ensure profile", "user_id", m.Author.ID, "err", err)
		b.reply(m, "something went wrong, try again")
		return
	}

	var reply string
	var err error
	switch cmd {
	case "help":
		reply = helpText(b.cfg.CommandPrefix)
	case "inv", "inventory":
		reply, err = b.cmdInventory(ctx, m)
	case "draw":
		reply, err = b.cmdDraw(ctx, m, args)
	case "gift":
		reply, err = b.cmdGift(ctx, m, args)
	case "lock":
		reply, err = b.cmdLock(ctx, m, args, true)
	case "unlock":
		reply, err = b.cmdLock(ctx, m, args, false)
	case "trade":
		reply, err = b.cmdTrade(ctx, m, args)
	case "offer":
		reply, err = b.cmdOffer(ctx, m, args)
	case "accept":
		reply, err = b.cmdAccept(ctx, m, args)
	case "reject":
		reply, err = b.cmdReject(m, args)
	case "attempt":
		reply, err = b.cmdAttempt(ctx, m, args)
	case "claim":
		reply, err = b.cmdClaim(ctx, m)
	case "pending":
		reply, err = b.cmdPending(ctx, m)
	case "like":
		reply, err = b.cmdLike(ctx, m, args)
	case "sub", "subscribe":
		reply, err = b.cmdSubscribe(ctx, m, args)
	case "sc", "superchat":
		reply, err = b.cmdSuperchat(ctx, m, args)
	case "scpay":
		reply, err = b.cmdSuperchatPay(ctx, m, args)
	case "standings":
		reply, err = b.cmdStandings(ctx, args)
	default:
		return
	}
	if err != nil {
		reply = friendlyError(err)
	}
	if reply != "" {
		b.reply(m, reply)
	}
}

func (b *Bot) reply(m *discordgo.MessageCreate, text string) {
	if _, err := b.session.ChannelMessageSend(m.ChannelID, text); err != nil {
		b.log.Error("send message", "channel_id", m.ChannelID, "err", err)
	}
}

func (b *Bot) cmdInventory(ctx context.Context, m *discordgo.MessageCreate) (string, error) {
	inv, err := b.core.Inventory(ctx, m.Author.ID)
	if err != nil {
		return "", err
	}
	if len(inv.Stacks) == 0 {
		return fmt.Sprintf("**%s** has no cards yet. Balance: %d", m.Author.Username, inv.Balance), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** — balance %d\n", m.Author.Username, inv.Balance)
	for _, st := range inv.Stacks {
		lock := ""
		if st.Locked {
			lock = " 🔒"
		}
		fmt.Fprintf(&sb, "`[%s]` %s ×%d%s\n", st.Rarity, st.Name, st.Count, lock)
	}
	return sb.String(), nil
}

func (b *Bot) cmdDraw(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	subject := strings.Join(args, " ")
	out, err := b.core.DrawWeightedReward(ctx, economy.DrawInput{
		UserID:         m.Author.ID,
		Subject:        subject,
		SlotName:       "pack",
		IdempotencyKey: "draw:" + m.ID,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s pulled **%s** `[%s]`!", m.Author.Username, out.Name, out.Rarity), nil
}

func (b *Bot) cmdGift(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	// gift @user <count> <rarity> <name...>
	if len(m.Mentions) == 0 || len(args) < 4 {
		return "usage: gift @user <count> <rarity> <card name>", nil
	}
	target := m.Mentions[0]
	count, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || count <= 0 {
		return "count must be a positive number", nil
	}
	rarity := strings.ToUpper(args[2])
	name := strings.Join(args[3:], " ")
	if err := b.core.EnsureProfile(ctx, target.ID, target.Username); err != nil {
		return "", err
	}
	shortfalls, err := b.core.GiftCards(ctx, m.Author.ID, target.ID, []economy.CardAmount{
		{CardRef: economy.CardRef{Name: name, Rarity: rarity}, Count: count},
	})
	if len(shortfalls) > 0 {
		return fmt.Sprintf("not enough unlocked copies of %s `[%s]`", name, rarity), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s gifted %d× **%s** `[%s]` to %s", m.Author.Username, count, name, rarity, target.Username), nil
}

func (b *Bot) cmdLock(ctx context.Context, m *discordgo.MessageCreate, args []string, locked bool) (string, error) {
	if len(args) < 2 {
		return "usage: lock <rarity> <card name>", nil
	}
	rarity := strings.ToUpper(args[0])
	name := strings.Join(args[1:], " ")
	if err := b.core.SetCardLock(ctx, m.Author.ID, name, rarity, locked); err != nil {
		return "", err
	}
	verb := "locked"
	if !locked {
		verb = "unlocked"
	}
	return fmt.Sprintf("%s `[%s]` %s", name, rarity, verb), nil
}

func (b *Bot) cmdTrade(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(m.Mentions) == 0 {
		return "usage: trade @user", nil
	}
	target := m.Mentions[0]
	if target.ID == m.Author.ID {
		return "you cannot trade with yourself", nil
	}
	if err := b.core.EnsureProfile(ctx, target.ID, target.Username); err != nil {
		return "", err
	}
	view := b.core.StartTrade(m.Author.ID, target.ID)
	return fmt.Sprintf("trade `%s` opened between %s and %s — use `%soffer %s <count> <rarity> <name>`",
		view.SessionID, m.Author.Username, target.Username, b.cfg.CommandPrefix, view.SessionID), nil
}

func (b *Bot) cmdOffer(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 4 {
		return "usage: offer <trade id> <count> <rarity> <card name>", nil
	}
	count, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || count <= 0 {
		return "count must be a positive number", nil
	}
	item := economy.CardAmount{
		CardRef: economy.CardRef{Name: strings.Join(args[3:], " "), Rarity: strings.ToUpper(args[2])},
		Count:   count,
	}
	view, err := b.core.AddOffer(ctx, args[0], m.Author.ID, item)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("offer added to trade `%s` — both sides must `%saccept %s` again", view.SessionID, b.cfg.CommandPrefix, view.SessionID), nil
}

func (b *Bot) cmdAccept(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 1 {
		return "usage: accept <trade id>", nil
	}
	out, err := b.core.AcceptTrade(ctx, args[0], m.Author.ID)
	if err != nil {
		return "", err
	}
	if !out.Finalized {
		if len(out.Shortfalls) > 0 {
			return "trade cancelled: one side no longer holds the offered cards", nil
		}
		return "accepted — waiting on the other side", nil
	}
	return "trade complete, cards exchanged 🤝", nil
}

func (b *Bot) cmdReject(m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 1 {
		return "usage: reject <trade id>", nil
	}
	if err := b.core.RejectTrade(args[0], m.Author.ID); err != nil {
		return "", err
	}
	return "trade rejected", nil
}

func (b *Bot) cmdAttempt(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 2 {
		return "usage: attempt <rarity> <card name>", nil
	}
	rarity := strings.ToUpper(args[0])
	name := strings.Join(args[1:], " ")
	out, err := b.core.StartLiveAttempt(ctx, m.Author.ID, name, rarity)
	if errors.Is(err, economy.ErrStageBusy) {
		if out.BusyUntil != nil {
			return fmt.Sprintf("that stage is busy until <t:%d:R>", out.BusyUntil.Unix()), nil
		}
		return "that stage is busy", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**%s** `[%s]` is on stage! Ready <t:%d:R> — `%sclaim` when it's time",
		name, rarity, out.Attempt.ReadyAt.Unix(), b.cfg.CommandPrefix), nil
}

func (b *Bot) cmdClaim(ctx context.Context, m *discordgo.MessageCreate) (string, error) {
	out, err := b.core.ClaimReadyAttempts(ctx, m.Author.ID)
	if err != nil {
		return "", err
	}
	if len(out.Resolved) == 0 {
		return "nothing ready to claim yet", nil
	}
	var sb strings.Builder
	for _, res := range out.Resolved {
		if res.Success && res.Bonus != nil {
			fmt.Fprintf(&sb, "🎤 **%s** `[%s]` nailed the performance! Bonus: **%s** `[%s]`\n",
				res.CardName, res.Rarity, res.Bonus.Name, res.Bonus.Rarity)
		} else if res.Success {
			fmt.Fprintf(&sb, "🎤 **%s** `[%s]` nailed the performance!\n", res.CardName, res.Rarity)
		} else {
			fmt.Fprintf(&sb, "💔 **%s** `[%s]` flopped and left the roster\n", res.CardName, res.Rarity)
		}
	}
	return sb.String(), nil
}

func (b *Bot) cmdPending(ctx context.Context, m *discordgo.MessageCreate) (string, error) {
	attempts, err := b.core.PendingAttempts(ctx, m.Author.ID)
	if err != nil {
		return "", err
	}
	if len(attempts) == 0 {
		return "no pending performances", nil
	}
	var sb strings.Builder
	for _, a := range attempts {
		fmt.Fprintf(&sb, "**%s** `[%s]` stage %d — ready <t:%d:R>\n", a.CardName, a.Rarity, a.Stage, a.ReadyAt.Unix())
	}
	return sb.String(), nil
}

func (b *Bot) cmdLike(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 1 {
		return "usage: like <event id>", nil
	}
	out, err := b.core.LikeEvent(ctx, args[0], m.Author.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("liked! +%d points (total %d)", out.Points, out.Total), nil
}

func (b *Bot) cmdSubscribe(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 3 {
		return "usage: sub <event id> <rarity> <card name>", nil
	}
	rarity := strings.ToUpper(args[1])
	name := strings.Join(args[2:], " ")
	out, err := b.core.SubscribeEvent(ctx, args[0], m.Author.ID, name, rarity)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("subscribed with **%s** `[%s]`! +%d points (total %d)", name, rarity, out.Points, out.Total), nil
}

func (b *Bot) cmdSuperchat(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 1 {
		return "usage: sc <event id>", nil
	}
	q, err := b.core.QuoteSuperchat(ctx, args[0], m.Author.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("next superchat costs **%d** — `%sscpay %s` within %ds to confirm",
		q.Cost, b.cfg.CommandPrefix, q.QuoteID, int(time.Until(q.ExpiresAt).Seconds())), nil
}

func (b *Bot) cmdSuperchatPay(ctx context.Context, m *discordgo.MessageCreate, args []string) (string, error) {
	if len(args) < 1 {
		return "usage: scpay <quote id>", nil
	}
	out, err := b.core.ConfirmSuperchat(ctx, args[0], m.Author.ID, "sc:"+m.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("superchat sent for **%d**! +%d points (balance %d)", out.Cost, out.Points, out.Balance), nil
}

func (b *Bot) cmdStandings(ctx context.Context, args []string) (string, error) {
	if len(args) < 1 {
		return "usage: standings <event id>", nil
	}
	rows, err := b.core.Standings(ctx, args[0])
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "no contributions yet", nil
	}
	var sb strings.Builder
	for i, row := range rows {
		fmt.Fprintf(&sb, "%d. <@%s> — %d pts (%d 👍 / %d 📺 / %d 💸)\n",
			i+1, row.UserID, row.Points, row.Likes, row.Subscribes, row.Superchats)
	}
	return sb.String(), nil
}

func friendlyError(err error) string {
	switch {
	case errors.Is(err, economy.ErrInsufficientQuantity):
		return "you don't hold enough unlocked copies of that card"
	case errors.Is(err, economy.ErrCardLocked):
		return "that card is locked"
	case errors.Is(err, economy.ErrInsufficientFunds):
		return "not enough currency"
	case errors.Is(err, economy.ErrInvalidRarity):
		return "that rarity doesn't qualify"
	case errors.Is(err, economy.ErrNoCard):
		return "you don't own that card"
	case errors.Is(err, economy.ErrTradeNotFound):
		return "no such trade"
	case errors.Is(err, economy.ErrTradeClosed):
		return "that trade is already closed"
	case errors.Is(err, economy.ErrNotParticipant):
		return "you're not part of that trade"
	case errors.Is(err, economy.ErrEventNotFound):
		return "no such event"
	case errors.Is(err, economy.ErrEventNotActive):
		return "that event isn't live right now"
	case errors.Is(err, economy.ErrAlreadyLiked):
		return "you already liked this event"
	case errors.Is(err, economy.ErrThrottled):
		return "easy there — wait a moment before liking again"
	case errors.Is(err, economy.ErrConfirmationExpired):
		return "that quote expired, request a new one"
	case errors.Is(err, economy.ErrStaleQuote):
		return "the price went up, request a new quote"
	case errors.Is(err, economy.ErrTxConflict):
		return "the system is busy, try again"
	default:
		return "something went wrong, try again"
	}
}

func helpText(prefix string) string {
	var sb strings.Builder
	sb.WriteString("**encore commands**\n")
	for _, line := range []string{
		"inv — show your cards and balance",
		"draw [subject] — open a pack",
		"gift @user <count> <rarity> <name> — give cards away",
		"lock|unlock <rarity> <name> — protect a card stack",
		"trade @user / offer / accept / reject — negotiate a swap",
		"attempt <rarity> <name> — send a card on stage",
		"claim / pending — resolve or list performances",
		"like|sub|sc|scpay|standings — boss event actions",
	} {
		fmt.Fprintf(&sb, "`%s%s`\n", prefix, line)
	}
	return sb.String()
}

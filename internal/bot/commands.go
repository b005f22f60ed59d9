package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/highroller-bot/highroller/internal/command"
	"github.com/highroller-bot/highroller/internal/game"
)

func (g *Gateway) registerCommands() {
	g.router.MustRegister(
		command.New("help", "show available commands").
			ExactArgs(0).Handle(g.cmdHelp),
		command.New("detailedhelp", "describe every command").
			ExactArgs(0).Handle(g.cmdDetailedHelp),
		command.New("register", "join the tournament").
			ExactArgs(0).Mutating().Handle(g.cmdRegister),
		command.New("create", "create a challenge; map, tribe and minutes are optional").
			Args("bet", "map", "tribe", "minutes", "private").
			RequireRegistered().MinArgs(1).MaxArgs(5).Mutating().Handle(g.cmdCreate),
		command.New("accept", "accept the challenge with the given id").
			Args("challenge").
			RequireRegistered().ExactArgs(1).Mutating().Handle(g.cmdAccept),
		command.New("start", "start the challenge, naming the game").
			Args("challenge", "gamename").
			RequireRegistered().MinArgs(2).Mutating().Handle(g.cmdStart),
		command.New("abort", "abort the challenge with the given id").
			Args("challenge").
			RequireRegistered().ExactArgs(1).Mutating().Handle(g.cmdAbort),
		command.New("win", "claim you won the challenge with the given id").
			Args("challenge").
			RequireRegistered().ExactArgs(1).Mutating().Handle(g.cmdWin),
		command.New("list", "list challenges (all, open, playing, done, aborted, mine, with <player>)").
			Args("filters").
			RequireRegistered().MinArgs(1).Handle(g.cmdList),
		command.New("userinfo", "show details about a player (yourself by default)").
			Args("player").
			RequireRegistered().MaxArgs(1).Handle(g.cmdUserinfo),
		command.New("leaderboards", "top 10 players this season and all time").
			RequireRegistered().ExactArgs(0).Handle(g.cmdLeaderboards),
		command.New("gameinfo", "show details about a challenge").
			Args("challenge").
			RequireRegistered().ExactArgs(1).Handle(g.cmdGameinfo),

		command.New("forceabort", "abort a challenge no matter its state, undoing any payout").
			Args("challenge").
			RequireAdmin().ExactArgs(1).Handle(g.cmdForceAbort),
		command.New("forcewin", "set the winner of a challenge, undoing any previous payout").
			Args("challenge", "winner").
			RequireAdmin().ExactArgs(2).Handle(g.cmdForceWin),
		command.New("addchips", "give a player chips (negative to take away)").
			Args("player", "chips").
			RequireAdmin().ExactArgs(2).Handle(g.cmdAddChips),
		command.New("giveeveryonechips", "give every player chips (negative to take away)").
			Args("chips").
			RequireAdmin().ExactArgs(1).Handle(g.cmdGiveEveryoneChips),
		command.New("resetseason", "reset everyone's season chips to the starting balance").
			RequireAdmin().ExactArgs(0).Handle(g.cmdResetSeason),
		command.New("freeze", "block betting commands during season rollover").
			RequireAdmin().ExactArgs(0).Handle(g.cmdFreeze),
		command.New("unfreeze", "reopen betting commands").
			RequireAdmin().ExactArgs(0).Handle(g.cmdUnfreeze),
	)
}

/*
 * Helpers
 */

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q should be a number", game.ErrInvalidArgumentValue, s)
	}
	return id, nil
}

// parsePlayer resolves a player by numeric id or by chat username.
func (g *Gateway) parsePlayer(ctx context.Context, idOrName string) (*game.Player, error) {
	if id, err := strconv.ParseInt(idOrName, 10, 64); err == nil {
		return g.registry.ByID(ctx, id)
	}
	return g.registry.ByUsername(ctx, strings.TrimPrefix(idOrName, "@"))
}

func (g *Gateway) playerName(ctx context.Context, id int64) string {
	player, err := g.registry.ByID(ctx, id)
	if err != nil || player.Username == "" {
		return fmt.Sprintf("player %d", id)
	}
	return player.Username
}

// challengeLine is the one-line rendering used in listings.
func (g *Gateway) challengeLine(ctx context.Context, ch *game.Challenge) string {
	away := "TBD"
	if ch.AcceptedBy != nil {
		away = g.playerName(ctx, *ch.AcceptedBy)
	}
	suffix := ""
	if ch.State == game.StateAborted {
		suffix = " (aborted)"
	}
	if ch.Winner != nil && ch.State == game.StateFinished {
		suffix = fmt.Sprintf(" (winner: %s)", g.playerName(ctx, *ch.Winner))
	}
	return fmt.Sprintf("Challenge %d: %s vs %s, bet %d%s",
		ch.ID, g.playerName(ctx, ch.AuthorID), away, ch.Bet, suffix)
}

// chunk splits text on line boundaries so every piece fits in a Telegram
// message (4096 chars).
func chunk(text string, limit int) []string {
	var out []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
		}
		out = append(out, text[:cut])
		text = strings.TrimPrefix(text[cut:], "\n")
	}
	return append(out, text)
}

/*
 * Player commands
 */

func (g *Gateway) cmdHelp(ctx context.Context, inv *command.Invocation) error {
	return inv.Reply("Welcome to the Highroller tournament!\nChallenge other players, bet your chips, win big.\n\n" + g.router.Help())
}

func (g *Gateway) cmdDetailedHelp(ctx context.Context, inv *command.Invocation) error {
	for _, part := range chunk(g.router.DetailedHelp(), 4000) {
		if err := inv.Reply(part); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gateway) cmdRegister(ctx context.Context, inv *command.Invocation) error {
	player, err := g.registry.Register(ctx, inv.Caller.ID, inv.Caller.Username)
	if err != nil {
		return err
	}
	return inv.Reply(fmt.Sprintf("You are registered! You start with %d chips. Good luck, have fun!", player.CurrentChips))
}

func (g *Gateway) cmdCreate(ctx context.Context, inv *command.Invocation) error {
	bet, err := strconv.Atoi(inv.Args[0])
	if err != nil {
		return fmt.Errorf("%w: bet should be a number", game.ErrInvalidArgumentValue)
	}

	mapName := g.cfg.Game.Maps()[0]
	if len(inv.Args) >= 2 {
		mapName = inv.Args[1]
		if !contains(g.cfg.Game.Maps(), mapName) {
			return fmt.Errorf("%w: unknown map %q", game.ErrInvalidArgumentValue, mapName)
		}
	}

	tribe := g.cfg.Game.Tribes[0]
	if len(inv.Args) >= 3 {
		tribe = inv.Args[2]
		if !contains(g.cfg.Game.Tribes, tribe) {
			return fmt.Errorf("%w: unknown tribe %q", game.ErrInvalidArgumentValue, tribe)
		}
	}

	lastsFor := g.cfg.Game.DefaultDuration
	if len(inv.Args) >= 4 {
		minutes, err := strconv.Atoi(inv.Args[3])
		if err != nil || minutes <= 0 {
			return fmt.Errorf("%w: minutes should be a positive number", game.ErrInvalidArgumentValue)
		}
		lastsFor = time.Duration(minutes) * time.Minute
	}

	private := false
	if len(inv.Args) >= 5 {
		private, err = strconv.ParseBool(inv.Args[4])
		if err != nil {
			return fmt.Errorf("%w: private should be true or false", game.ErrInvalidArgumentValue)
		}
	}

	draft, err := g.engine.Precreate(ctx, bet, inv.Caller.ID, mapName, tribe, lastsFor, "", private)
	if err != nil {
		return err
	}

	// The announcement happens between validation and commit so no row lock
	// is held across the Telegram call. If the announcement fails nothing
	// was charged or persisted.
	var ref *int64
	if !private {
		ref, err = g.announce(draft, g.playerName(ctx, inv.Caller.ID))
		if err != nil {
			return err
		}
	}

	ch, err := g.engine.FinishCreate(ctx, draft, ref)
	if err != nil {
		return err
	}

	if private {
		return inv.Reply(fmt.Sprintf(
			"Challenge %d created. It is private, so it won't show up in listings.\nYour opponent joins with: accept %d", ch.ID, ch.ID))
	}
	return inv.Reply(fmt.Sprintf("Challenge %d created, bet %d. It times out at %s.",
		ch.ID, ch.Bet, ch.TimeoutAt.Format(time.RFC822)))
}

func (g *Gateway) cmdAccept(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	ch, err := g.engine.Accept(ctx, id, inv.Caller.ID)
	if err != nil {
		return err
	}
	g.notifier.NotifyPlayer(ctx, ch.AuthorID, fmt.Sprintf(
		"%s has been accepted by %s.\nStart the game with: start %d <gamename>",
		g.challengeLine(ctx, ch), g.playerName(ctx, inv.Caller.ID), ch.ID))
	return inv.Reply(fmt.Sprintf("You accepted challenge %d. Waiting for the host to start the game.", ch.ID))
}

func (g *Gateway) cmdStart(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	gameName := strings.Join(inv.Args[1:], " ")
	ch, err := g.engine.Start(ctx, id, inv.Caller.ID, gameName)
	if err != nil {
		return err
	}
	g.notifier.NotifyParticipants(ctx, ch, fmt.Sprintf(
		"%s has started! The game name is %q.\nOnce it's over, the winner claims with: win %d",
		g.challengeLine(ctx, ch), gameName, ch.ID))
	return inv.Reply("OK")
}

func (g *Gateway) cmdAbort(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	ch, err := g.engine.Abort(ctx, id, inv.Caller.ID)
	if err != nil {
		return err
	}
	g.notifier.NotifyParticipants(ctx, ch, fmt.Sprintf(
		"%s has been aborted. All bets were refunded.", g.challengeLine(ctx, ch)))
	return nil
}

func (g *Gateway) cmdWin(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	ch, err := g.engine.ClaimVictory(ctx, id, inv.Caller.ID)
	if err != nil {
		return err
	}
	g.notifier.NotifyParticipants(ctx, ch, fmt.Sprintf(
		"%s!\nIf you want to dispute the claim, contact the mods.", g.challengeLine(ctx, ch)))
	return nil
}

func (g *Gateway) cmdList(ctx context.Context, inv *command.Invocation) error {
	var states []game.State
	var withPlayers []int64

	for i := 0; i < len(inv.Args); i++ {
		switch arg := inv.Args[i]; arg {
		case "all":
			states = append(states, game.StateCreated, game.StateAccepted, game.StateStarted, game.StateFinished)
		case "open":
			states = append(states, game.StateCreated)
		case "playing":
			states = append(states, game.StateAccepted, game.StateStarted)
		case "done":
			states = append(states, game.StateFinished)
		case "aborted":
			states = append(states, game.StateAborted)
		case "mine":
			withPlayers = append(withPlayers, inv.Caller.ID)
		case "with":
			i++
			if i >= len(inv.Args) {
				return fmt.Errorf("%w: \"with\" needs a player", game.ErrInvalidArgumentValue)
			}
			player, err := g.parsePlayer(ctx, inv.Args[i])
			if err != nil {
				return err
			}
			withPlayers = append(withPlayers, player.ID)
		default:
			return fmt.Errorf("%w: %q", game.ErrInvalidArgumentValue, arg)
		}
	}

	var lines []string
	for _, state := range states {
		challenges, err := g.engine.ChallengesByState(ctx, state)
		if err != nil {
			return err
		}
		for _, ch := range challenges {
			// Unaccepted private challenges stay invisible to everyone but
			// their author.
			if ch.Private && ch.State == game.StateCreated && ch.AuthorID != inv.Caller.ID {
				continue
			}
			if !matchesPlayers(ch, withPlayers) {
				continue
			}
			lines = append(lines, g.challengeLine(ctx, ch))
		}
	}

	if len(lines) == 0 {
		return inv.Reply("No challenges match.")
	}
	for _, part := range chunk(strings.Join(lines, "\n"), 4000) {
		if err := inv.Reply(part); err != nil {
			return err
		}
	}
	return nil
}

func matchesPlayers(ch *game.Challenge, players []int64) bool {
	for _, id := range players {
		if !ch.IsParticipant(id) {
			return false
		}
	}
	return true
}

func (g *Gateway) cmdUserinfo(ctx context.Context, inv *command.Invocation) error {
	var player *game.Player
	var err error
	if len(inv.Args) == 1 {
		player, err = g.parsePlayer(ctx, inv.Args[0])
	} else {
		player, err = g.registry.ByID(ctx, inv.Caller.ID)
	}
	if err != nil {
		return err
	}

	wins, played, err := g.registry.Winrate(ctx, player.ID)
	if err != nil {
		return err
	}
	return inv.Reply(fmt.Sprintf(
		"%s has %d chips! (%d across all seasons)\nWinrate: %d/%d\nAborted games: %d",
		g.playerName(ctx, player.ID), player.CurrentChips, player.TotalChips, wins, played, player.AbortedGames))
}

func (g *Gateway) cmdLeaderboards(ctx context.Context, inv *command.Invocation) error {
	season, err := g.registry.TopBySeason(ctx, 10)
	if err != nil {
		return err
	}
	allTime, err := g.registry.TopAllTime(ctx, 10)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("Top 10 players this season:\n")
	for i, player := range season {
		fmt.Fprintf(&b, "%d. %s with %d chips\n", i+1, g.playerName(ctx, player.ID), player.CurrentChips)
	}
	b.WriteString("\nTop 10 players all time:\n")
	for i, player := range allTime {
		fmt.Fprintf(&b, "%d. %s with %d chips\n", i+1, g.playerName(ctx, player.ID), player.TotalChips)
	}
	return inv.Reply(strings.TrimRight(b.String(), "\n"))
}

func (g *Gateway) cmdGameinfo(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	ch, err := g.engine.ChallengeByID(ctx, id)
	if err != nil {
		return err
	}

	away := "TBD"
	if ch.AcceptedBy != nil {
		away = g.playerName(ctx, *ch.AcceptedBy)
	}
	gameName := "-"
	if ch.GameName != nil {
		gameName = *ch.GameName
	}
	winner := "-"
	if ch.Winner != nil {
		winner = g.playerName(ctx, *ch.Winner)
	}
	return inv.Reply(fmt.Sprintf(
		"Challenge %d\nby %s\naccepted by %s\n\nBet: %d\nMap: %s\nTribe: %s\nTimeout: %s\n\nGame name: %s\nWinner: %s\nState: %s",
		ch.ID, g.playerName(ctx, ch.AuthorID), away, ch.Bet, ch.Map, ch.Tribe,
		ch.TimeoutAt.Format(time.RFC822), gameName, winner, ch.State))
}

/*
 * Admin commands
 */

func (g *Gateway) cmdForceAbort(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	aborted, err := g.engine.ForceAbort(ctx, id)
	if err != nil {
		return err
	}
	g.notifier.NotifyParticipants(ctx, aborted, fmt.Sprintf(
		"%s has been aborted by an admin. All bets were refunded.", g.challengeLine(ctx, aborted)))
	return inv.Reply("OK")
}

func (g *Gateway) cmdForceWin(ctx context.Context, inv *command.Invocation) error {
	id, err := parseID(inv.Args[0])
	if err != nil {
		return err
	}
	winner, err := g.parsePlayer(ctx, inv.Args[1])
	if err != nil {
		return err
	}
	won, err := g.engine.ForceWin(ctx, id, winner.ID)
	if err != nil {
		return err
	}
	g.notifier.NotifyParticipants(ctx, won, fmt.Sprintf(
		"An admin set the winner of challenge %d to %s.", won.ID, g.playerName(ctx, winner.ID)))
	return inv.Reply("OK")
}

func (g *Gateway) cmdAddChips(ctx context.Context, inv *command.Invocation) error {
	player, err := g.parsePlayer(ctx, inv.Args[0])
	if err != nil {
		return err
	}
	amount, err := strconv.Atoi(inv.Args[1])
	if err != nil {
		return fmt.Errorf("%w: chips should be a number", game.ErrInvalidArgumentValue)
	}
	if err := g.registry.AdjustChips(ctx, player.ID, amount); err != nil {
		return err
	}
	return inv.Reply("OK")
}

func (g *Gateway) cmdGiveEveryoneChips(ctx context.Context, inv *command.Invocation) error {
	amount, err := strconv.Atoi(inv.Args[0])
	if err != nil {
		return fmt.Errorf("%w: chips should be a number", game.ErrInvalidArgumentValue)
	}
	if err := g.registry.GiveAll(ctx, amount); err != nil {
		return err
	}
	return inv.Reply("OK")
}

func (g *Gateway) cmdResetSeason(ctx context.Context, inv *command.Invocation) error {
	if err := g.registry.ResetSeason(ctx); err != nil {
		return err
	}
	return inv.Reply("Season chips reset.")
}

func (g *Gateway) cmdFreeze(ctx context.Context, inv *command.Invocation) error {
	g.router.SetFrozen(true)
	return inv.Reply("System frozen: betting commands are blocked until unfreeze.")
}

func (g *Gateway) cmdUnfreeze(ctx context.Context, inv *command.Invocation) error {
	g.router.SetFrozen(false)
	return inv.Reply("System unfrozen, bets are open again.")
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

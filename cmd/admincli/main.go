// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/foldatunez/internal/api/connect"
)

var (
	app     = kingpin.New("foldatunez-admincli", "Folda Tunez admin client")
	server  = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token   = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()
	timeout = app.Flag("timeout", "Request timeout").Default("30s").Duration()

	// list command
	listCmd = app.Command("list", "List active guilds").Alias("guilds")

	// status command
	statusCmd   = app.Command("status", "Show a guild's playback status")
	statusGuild = statusCmd.Arg("guild", "Guild ID").Required().String()

	// simple commands
	skipCmd     = app.Command("skip", "Skip the current track")
	skipGuild   = skipCmd.Arg("guild", "Guild ID").Required().String()
	pauseCmd    = app.Command("pause", "Pause playback")
	pauseGuild  = pauseCmd.Arg("guild", "Guild ID").Required().String()
	resumeCmd   = app.Command("resume", "Resume playback")
	resumeGuild = resumeCmd.Arg("guild", "Guild ID").Required().String()
	stopCmd     = app.Command("stop", "Stop playback and clear the queue")
	stopGuild   = stopCmd.Arg("guild", "Guild ID").Required().String()
	leaveCmd    = app.Command("leave", "Tear the guild's session down")
	leaveGuild  = leaveCmd.Arg("guild", "Guild ID").Required().String()

	// chat command shortcuts
	playCmd      = app.Command("play", "Queue a URL, Spotify link, local path or search text")
	playGuild    = playCmd.Arg("guild", "Guild ID").Required().String()
	playQuery    = playCmd.Arg("query", "What to play").Required().Strings()
	loopCmd      = app.Command("loop", "Set the loop mode, or cycle it when no mode is given")
	loopGuild    = loopCmd.Arg("guild", "Guild ID").Required().String()
	loopMode     = loopCmd.Arg("mode", "none, queue or song").Enum("none", "queue", "song")
	joinCmd      = app.Command("join", "Select the voice channel a guild plays in")
	joinGuild    = joinCmd.Arg("guild", "Guild ID").Required().String()
	joinChannel  = joinCmd.Arg("channel", "Voice channel ID").Required().String()
	shuffleCmd   = app.Command("shuffle", "Shuffle the upcoming tracks")
	shuffleGuild = shuffleCmd.Arg("guild", "Guild ID").Required().String()
	clearCmd     = app.Command("clear", "Clear the upcoming tracks")
	clearGuild   = clearCmd.Arg("guild", "Guild ID").Required().String()
	queueCmd     = app.Command("queue", "Show the queue as the chat would")
	queueGuild   = queueCmd.Arg("guild", "Guild ID").Required().String()

	// exec command
	execCmd   = app.Command("exec", "Run a chat command in a guild, e.g. exec 123 play lofi")
	execGuild = execCmd.Arg("guild", "Guild ID").Required().String()
	execArgs  = execCmd.Arg("command", "Command line").Required().Strings()
)

var (
	headerColor = color.New(color.FgHiCyan, color.Bold)
	okColor     = color.New(color.FgHiGreen)
	failColor   = color.New(color.FgHiRed)
	dimColor    = color.New(color.FgHiBlack)
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		failColor.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := apiconnect.NewAdminClient(http.DefaultClient, *server, *token)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch command {
	case listCmd.FullCommand():
		listGuilds(ctx, client)
	case statusCmd.FullCommand():
		status(ctx, client, *statusGuild)
	case skipCmd.FullCommand():
		simple(ctx, client, "skip", *skipGuild)
	case pauseCmd.FullCommand():
		simple(ctx, client, "pause", *pauseGuild)
	case resumeCmd.FullCommand():
		simple(ctx, client, "resume", *resumeGuild)
	case stopCmd.FullCommand():
		simple(ctx, client, "stop", *stopGuild)
	case leaveCmd.FullCommand():
		simple(ctx, client, "leave", *leaveGuild)
	case playCmd.FullCommand():
		execLine(ctx, client, *playGuild, "play "+strings.Join(*playQuery, " "))
	case loopCmd.FullCommand():
		execLine(ctx, client, *loopGuild, strings.TrimSpace("loop "+*loopMode))
	case joinCmd.FullCommand():
		execLine(ctx, client, *joinGuild, "join "+*joinChannel)
	case shuffleCmd.FullCommand():
		execLine(ctx, client, *shuffleGuild, "shuffle")
	case clearCmd.FullCommand():
		execLine(ctx, client, *clearGuild, "clear")
	case queueCmd.FullCommand():
		execLine(ctx, client, *queueGuild, "queue")
	case execCmd.FullCommand():
		execLine(ctx, client, *execGuild, strings.Join(*execArgs, " "))
	}
}

func listGuilds(ctx context.Context, client *apiconnect.AdminClient) {
	guilds, err := client.ListGuilds(ctx)
	exitOnError(err)

	headerColor.Printf("Active guilds (%d):\n", len(guilds))
	for _, g := range guilds {
		now := "-"
		if g.Current != nil {
			now = g.Current.Title
		}
		fmt.Printf("  %s  %-13s loop=%-5s pending=%-4d %s\n", g.GuildID, g.Phase, g.LoopMode, len(g.Pending), now)
	}
}

func status(ctx context.Context, client *apiconnect.AdminClient, guildID string) {
	s, err := client.GetStatus(ctx, guildID)
	exitOnError(err)

	headerColor.Printf("\n=== GUILD %s ===\n", s.GuildID)
	fmt.Printf("Phase: %s\n", s.Phase)
	fmt.Printf("Loop: %s\n", s.LoopMode)
	if s.Ingesting {
		fmt.Println("Loading a playlist...")
	}
	fmt.Printf("Tracks played: %d\n", s.TracksStarted)
	fmt.Printf("Data usage: %.2f MB\n", float64(s.BytesStreamed)/(1024*1024))
	fmt.Printf("Uptime: %s\n", time.Duration(s.UptimeSec)*time.Second)

	if s.Current != nil {
		fmt.Println("\nCurrently Playing:")
		fmt.Printf("  %s\n", s.Current.Title)
		fmt.Printf("  Requested by: %s\n", s.Current.RequestedBy)
		fmt.Printf("  Position: %s / %s\n", clock(s.ElapsedSec), duration(s.Current.DurationSec))
		dimColor.Printf("  %s\n", s.Current.Origin)
	} else {
		fmt.Println("\nNo track currently playing")
	}

	if len(s.Pending) > 0 {
		fmt.Printf("\nUpcoming (%d):\n", len(s.Pending))
		for i, t := range s.Pending {
			fmt.Printf("  %d. %s (%s) - %s\n", i+1, t.Title, duration(t.DurationSec), t.RequestedBy)
		}
	}
	fmt.Println()
}

func simple(ctx context.Context, client *apiconnect.AdminClient, name, guildID string) {
	resp, err := client.Command(ctx, name, guildID)
	exitOnError(err)
	printResponse(resp)
}

func execLine(ctx context.Context, client *apiconnect.AdminClient, guildID, line string) {
	resp, err := client.Exec(ctx, guildID, line)
	exitOnError(err)
	printResponse(resp)
}

func printResponse(resp *apiconnect.CommandResponse) {
	for _, r := range resp.Replies {
		fmt.Println(r)
	}
	if !resp.Success {
		failColor.Printf("Failed: %s\n", resp.Message)
		os.Exit(1)
	}
	okColor.Println("OK")
}

func exitOnError(err error) {
	if err != nil {
		failColor.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func clock(sec int64) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func duration(sec int64) string {
	if sec <= 0 {
		return "?"
	}
	return clock(sec)
}

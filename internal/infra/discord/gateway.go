// Package discord connects the command router to a Discord bot.
package discord

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// commandTimeout bounds one command, playlist ingestion included.
const commandTimeout = 10 * time.Minute

// Dispatcher parses a command line and reserves its place in the guild's
// order. *session.Router implements it.
type Dispatcher interface {
	Prepare(cc command.Context, line string) (func(context.Context) error, error)
}

// Config configures the gateway.
type Config struct {
	Token        string
	Prefix       string
	OnDisconnect func(guildID snowflake.ID)
}

// Gateway receives chat messages and voice state changes.
type Gateway struct {
	client     *bot.Client
	dispatcher Dispatcher
	cfg        Config
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates the bot client. It does not connect until Open.
func New(cfg Config, dispatcher Dispatcher) (*Gateway, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord token is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{dispatcher: dispatcher, cfg: cfg, ctx: ctx, cancel: cancel}

	client, err := disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildVoiceStates,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithEventListenerFunc(g.onMessageCreate),
		bot.WithEventListenerFunc(g.onVoiceStateUpdate),
	)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create discord client")
	}
	g.client = client
	return g, nil
}

// Open connects to the gateway.
func (g *Gateway) Open(ctx context.Context) error {
	if err := g.client.OpenGateway(ctx); err != nil {
		return errors.Wrap(err, "failed to open discord gateway")
	}
	zlog.Info().Msg("discord: gateway connected")
	return nil
}

// VoiceConn creates the voice connection of a guild.
func (g *Gateway) VoiceConn(guildID snowflake.ID) voice.Conn {
	return g.client.VoiceManager.CreateConn(guildID)
}

// Close disconnects and cancels running commands.
func (g *Gateway) Close(ctx context.Context) {
	g.cancel()
	g.client.Close(ctx)
	zlog.Info().Msg("discord: gateway closed")
}

func (g *Gateway) onMessageCreate(event *events.MessageCreate) {
	msg := event.Message
	if !isCommand(msg.Author.Bot, event.GuildID, msg.Content, g.cfg.Prefix) {
		return
	}

	cc := &channelContext{
		rest:    event.Client().Rest,
		guild:   *event.GuildID,
		channel: event.ChannelID,
		requester: track.Requester{
			ID:   msg.Author.ID.String(),
			Name: msg.Author.Username,
			Type: track.RequesterTypeUser,
		},
	}
	if vs, ok := event.Client().Caches.VoiceState(*event.GuildID, msg.Author.ID); ok && vs.ChannelID != nil {
		cc.voice = *vs.ChannelID
	}

	g.route(cc, msg.Content)
}

// route reserves the command's place before returning, so commands of a guild
// apply in the order their messages arrived. The command itself runs in the
// background.
func (g *Gateway) route(cc *channelContext, content string) {
	run, err := g.dispatcher.Prepare(cc, content)
	if err != nil {
		zlog.Debug().Msgf("discord: message ignored: guild=%s content=%q error=%v", cc.guild, content, err)
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zlog.Error().Msgf("discord: command panicked: guild=%s content=%q panic=%v", cc.guild, content, r)
			}
		}()
		ctx, cancel := context.WithTimeout(g.ctx, commandTimeout)
		defer cancel()
		if err := run(ctx); err != nil {
			zlog.Debug().Msgf("discord: command failed: guild=%s content=%q error=%v", cc.guild, content, err)
		}
	}()
}

func (g *Gateway) onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	vs := event.VoiceState
	if vs.UserID != event.Client().ID() || vs.ChannelID != nil {
		return
	}
	zlog.Info().Msgf("discord: bot disconnected by external event: guild=%s", vs.GuildID)
	if g.cfg.OnDisconnect != nil {
		go g.cfg.OnDisconnect(vs.GuildID)
	}
}

// isCommand reports whether a message should be routed.
func isCommand(fromBot bool, guildID *snowflake.ID, content, prefix string) bool {
	return !fromBot && guildID != nil && strings.HasPrefix(strings.TrimSpace(content), prefix)
}

// messageCreator is the part of the REST client replies need.
type messageCreator interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// channelContext answers in the channel a command came from.
type channelContext struct {
	rest      messageCreator
	guild     snowflake.ID
	channel   snowflake.ID
	requester track.Requester
	voice     snowflake.ID
}

var _ command.VoiceLocator = (*channelContext)(nil)

func (c *channelContext) GuildID() snowflake.ID      { return c.guild }
func (c *channelContext) Requester() track.Requester { return c.requester }

// VoiceChannel returns the channel the author was in when the message arrived.
func (c *channelContext) VoiceChannel() (snowflake.ID, bool) {
	return c.voice, c.voice != 0
}

// Reply sends message to the channel.
func (c *channelContext) Reply(ctx context.Context, message string) error {
	_, err := c.rest.CreateMessage(c.channel,
		discord.NewMessageCreateBuilder().SetContent(message).Build(),
		rest.WithCtx(ctx))
	if err != nil {
		return errors.Wrapf(err, "failed to send message to channel %s", c.channel)
	}
	return nil
}

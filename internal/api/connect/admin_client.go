package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// AdminClient calls the admin RPC.
type AdminClient struct {
	listGuilds *connect.Client[ListGuildsRequest, ListGuildsResponse]
	getStatus  *connect.Client[GuildRequest, GuildStatus]
	exec       *connect.Client[ExecRequest, CommandResponse]
	commands   map[string]*connect.Client[GuildRequest, CommandResponse]
}

// NewAdminClient creates a client for the server at baseURL authenticating with token.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string) *AdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts := []connect.ClientOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithInterceptors(NewTokenInterceptor(token)),
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	cmd := func(procedure string) *connect.Client[GuildRequest, CommandResponse] {
		return connect.NewClient[GuildRequest, CommandResponse](httpClient, baseURL+procedure, opts...)
	}
	return &AdminClient{
		listGuilds: connect.NewClient[ListGuildsRequest, ListGuildsResponse](httpClient, baseURL+ListGuildsProcedure, opts...),
		getStatus:  connect.NewClient[GuildRequest, GuildStatus](httpClient, baseURL+GetStatusProcedure, opts...),
		exec:       connect.NewClient[ExecRequest, CommandResponse](httpClient, baseURL+ExecProcedure, opts...),
		commands: map[string]*connect.Client[GuildRequest, CommandResponse]{
			"skip":   cmd(SkipProcedure),
			"pause":  cmd(PauseProcedure),
			"resume": cmd(ResumeProcedure),
			"stop":   cmd(StopProcedure),
			"leave":  cmd(LeaveProcedure),
		},
	}
}

// ListGuilds lists every active guild.
func (c *AdminClient) ListGuilds(ctx context.Context) ([]GuildStatus, error) {
	resp, err := c.listGuilds.CallUnary(ctx, connect.NewRequest(&ListGuildsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Guilds, nil
}

// GetStatus returns one guild's status.
func (c *AdminClient) GetStatus(ctx context.Context, guildID string) (*GuildStatus, error) {
	resp, err := c.getStatus.CallUnary(ctx, connect.NewRequest(&GuildRequest{GuildID: guildID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Exec runs a command line in a guild.
func (c *AdminClient) Exec(ctx context.Context, guildID, line string) (*CommandResponse, error) {
	resp, err := c.exec.CallUnary(ctx, connect.NewRequest(&ExecRequest{GuildID: guildID, Line: line}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Command runs one of skip, pause, resume, stop or leave.
func (c *AdminClient) Command(ctx context.Context, name, guildID string) (*CommandResponse, error) {
	client, ok := c.commands[name]
	if !ok {
		return c.Exec(ctx, guildID, name)
	}
	resp, err := client.CallUnary(ctx, connect.NewRequest(&GuildRequest{GuildID: guildID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

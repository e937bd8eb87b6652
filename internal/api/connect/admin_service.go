package connect

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/foldatunez/internal/app/command"
	"github.com/osa030/foldatunez/internal/app/playback"
	"github.com/osa030/foldatunez/internal/app/session"
	"github.com/osa030/foldatunez/internal/app/session/registry"
	"github.com/osa030/foldatunez/internal/domain/track"
)

// Sessions is the read side of the session manager.
type Sessions interface {
	Guilds() []snowflake.ID
	Status(guildID snowflake.ID) (playback.Snapshot, error)
	UsageOf(guildID snowflake.ID) (playback.Usage, error)
}

// Dispatcher runs chat command lines.
type Dispatcher interface {
	Prefix() string
	Dispatch(ctx context.Context, cc command.Context, line string) error
}

var (
	_ Sessions   = (*session.Manager)(nil)
	_ Dispatcher = (*session.Router)(nil)
)

// AdminService implements the admin RPC.
type AdminService struct {
	sessions   Sessions
	dispatcher Dispatcher
	operator   track.Requester
}

// NewAdminService creates a new AdminService. Commands run as operatorName.
func NewAdminService(sessions Sessions, dispatcher Dispatcher, operatorName string) *AdminService {
	return &AdminService{
		sessions:   sessions,
		dispatcher: dispatcher,
		operator: track.Requester{
			ID:   "admin",
			Name: operatorName,
			Type: track.RequesterTypeOperator,
		},
	}
}

// NewAdminServiceHandler mounts every procedure under the service path.
func NewAdminServiceHandler(svc *AdminService, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	mux.Handle(ListGuildsProcedure, connect.NewUnaryHandler(ListGuildsProcedure, svc.ListGuilds, opts...))
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, svc.GetStatus, opts...))
	mux.Handle(ExecProcedure, connect.NewUnaryHandler(ExecProcedure, svc.Exec, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, svc.command("skip"), opts...))
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.command("pause"), opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.command("resume"), opts...))
	mux.Handle(StopProcedure, connect.NewUnaryHandler(StopProcedure, svc.command("stop"), opts...))
	mux.Handle(LeaveProcedure, connect.NewUnaryHandler(LeaveProcedure, svc.command("leave"), opts...))
	return "/" + ServiceName + "/", mux
}

// ListGuilds returns the status of every guild with a live scheduler.
func (s *AdminService) ListGuilds(
	ctx context.Context,
	req *connect.Request[ListGuildsRequest],
) (*connect.Response[ListGuildsResponse], error) {
	ids := s.sessions.Guilds()
	guilds := make([]GuildStatus, 0, len(ids))
	for _, id := range ids {
		st, err := s.status(id)
		if err != nil {
			// torn down between listing and reading
			continue
		}
		guilds = append(guilds, st)
	}
	return connect.NewResponse(&ListGuildsResponse{Guilds: guilds}), nil
}

// GetStatus returns one guild's status.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[GuildRequest],
) (*connect.Response[GuildStatus], error) {
	id, err := parseGuild(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	st, err := s.status(id)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownGuild) {
			return nil, connect.NewError(connect.CodeNotFound, err)
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&st), nil
}

// Exec runs a chat command line on behalf of the operator.
func (s *AdminService) Exec(
	ctx context.Context,
	req *connect.Request[ExecRequest],
) (*connect.Response[CommandResponse], error) {
	id, err := parseGuild(req.Msg.GuildID)
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(req.Msg.Line)
	if line == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("command line is empty"))
	}
	return s.run(ctx, id, line)
}

func (s *AdminService) command(name string) func(context.Context, *connect.Request[GuildRequest]) (*connect.Response[CommandResponse], error) {
	return func(ctx context.Context, req *connect.Request[GuildRequest]) (*connect.Response[CommandResponse], error) {
		id, err := parseGuild(req.Msg.GuildID)
		if err != nil {
			return nil, err
		}
		return s.run(ctx, id, name)
	}
}

func (s *AdminService) run(ctx context.Context, id snowflake.ID, line string) (*connect.Response[CommandResponse], error) {
	prefix := s.dispatcher.Prefix()
	if !strings.HasPrefix(line, prefix) {
		line = prefix + line
	}

	rec := command.NewRecorder(id, s.operator)
	err := s.dispatcher.Dispatch(ctx, rec, line)
	zlog.Info().Msgf("admin: exec: guild=%s line=%q error=%v", id, line, err)

	resp := &CommandResponse{Success: err == nil, Replies: rec.Replies(), Message: rec.Last()}
	if err != nil && resp.Message == "" {
		resp.Message = err.Error()
	}
	return connect.NewResponse(resp), nil
}

func (s *AdminService) status(id snowflake.ID) (GuildStatus, error) {
	snap, err := s.sessions.Status(id)
	if err != nil {
		return GuildStatus{}, err
	}
	usage, err := s.sessions.UsageOf(id)
	if err != nil {
		return GuildStatus{}, err
	}

	st := GuildStatus{
		GuildID:       id.String(),
		Phase:         snap.Phase.String(),
		LoopMode:      snap.LoopMode.String(),
		ElapsedSec:    int64(snap.Elapsed / time.Second),
		Pending:       make([]TrackInfo, 0, len(snap.Pending)),
		Ingesting:     snap.Ingesting,
		TracksStarted: usage.TracksStarted,
		BytesStreamed: usage.BytesStreamed,
	}
	if !usage.StartedAt.IsZero() {
		st.UptimeSec = int64(time.Since(usage.StartedAt) / time.Second)
	}
	if snap.Current != nil {
		cur := trackInfo(*snap.Current)
		st.Current = &cur
	}
	for _, t := range snap.Pending {
		st.Pending = append(st.Pending, trackInfo(t))
	}
	return st, nil
}

func trackInfo(t track.Track) TrackInfo {
	return TrackInfo{
		ID:          t.ID,
		Title:       t.Title,
		Origin:      t.Origin,
		RequestedBy: t.Requester.DisplayName(),
		DurationSec: int64(t.Duration / time.Second),
	}
}

func parseGuild(raw string) (snowflake.ID, error) {
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, connect.NewError(connect.CodeInvalidArgument, errors.Wrapf(err, "invalid guild id %q", raw))
	}
	return id, nil
}

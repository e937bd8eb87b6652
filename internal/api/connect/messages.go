package connect

// ServiceName is the fully qualified admin service name.
const ServiceName = "foldatunez.admin.v1.AdminService"

// Procedure paths.
const (
	ListGuildsProcedure = "/" + ServiceName + "/ListGuilds"
	GetStatusProcedure  = "/" + ServiceName + "/GetStatus"
	ExecProcedure       = "/" + ServiceName + "/Exec"
	SkipProcedure       = "/" + ServiceName + "/Skip"
	PauseProcedure      = "/" + ServiceName + "/Pause"
	ResumeProcedure     = "/" + ServiceName + "/Resume"
	StopProcedure       = "/" + ServiceName + "/Stop"
	LeaveProcedure      = "/" + ServiceName + "/Leave"
)

type ListGuildsRequest struct{}

type ListGuildsResponse struct {
	Guilds []GuildStatus `json:"guilds"`
}

type GuildRequest struct {
	GuildID string `json:"guild_id"`
}

type ExecRequest struct {
	GuildID string `json:"guild_id"`
	Line    string `json:"line"`
}

// CommandResponse reports the outcome of a command and every reply it produced.
type CommandResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Replies []string `json:"replies,omitempty"`
}

type TrackInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Origin      string `json:"origin"`
	RequestedBy string `json:"requested_by"`
	DurationSec int64  `json:"duration_sec"`
}

type GuildStatus struct {
	GuildID       string      `json:"guild_id"`
	Phase         string      `json:"phase"`
	LoopMode      string      `json:"loop_mode"`
	Current       *TrackInfo  `json:"current,omitempty"`
	ElapsedSec    int64       `json:"elapsed_sec"`
	Pending       []TrackInfo `json:"pending"`
	Ingesting     bool        `json:"ingesting"`
	TracksStarted int         `json:"tracks_started"`
	BytesStreamed int64       `json:"bytes_streamed"`
	UptimeSec     int64       `json:"uptime_sec"`
}

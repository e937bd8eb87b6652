package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/foldatunez/internal/domain/track"
)

func TestRecorder(t *testing.T) {
	rec := NewRecorder(7, track.Requester{ID: "u", Name: "bob"})
	var cc Context = rec

	assert.Equal(t, "", rec.Last())
	require.NoError(t, cc.Reply(context.Background(), "one"))
	require.NoError(t, cc.Reply(context.Background(), "two"))

	assert.Equal(t, []string{"one", "two"}, rec.Replies())
	assert.Equal(t, "two", rec.Last())
	assert.Equal(t, "bob", cc.Requester().Name)
	assert.EqualValues(t, 7, cc.GuildID())
}

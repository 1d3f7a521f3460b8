package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetadata(t *testing.T) {
	md := Metadata{}
	md.Set("severity", "High")
	md.Add("targets", "Slack")
	md.Add("targets", "Email")

	assert.Equal(t, "High", md.Get("severity"))
	assert.Equal(t, []string{"Slack", "Email"}, md.Values("targets"))
	assert.True(t, md.Has("targets"))
	assert.False(t, md.Has("channel"))
	assert.Equal(t, "", md.Get("channel"))

	clone := md.Clone()
	clone.Add("targets", "PagerDuty")
	assert.Len(t, md.Values("targets"), 2, "clone must not alias the original")

	var nilMD Metadata
	assert.Nil(t, nilMD.Clone())
	assert.False(t, nilMD.Has("targets"))
}

func TestPermanent(t *testing.T) {
	base := errors.New("malformed event")

	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(base))

	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "malformed event", err.Error())

	wrapped := fmt.Errorf("handle message: %w", err)
	assert.True(t, IsPermanent(wrapped))
}

type fakeConn bool

func (f fakeConn) IsConnected() bool { return bool(f) }

func TestCheckHealth(t *testing.T) {
	ctx := context.Background()

	status := CheckHealth(ctx, fakeConn(true))
	assert.True(t, status.Connected)
	assert.Empty(t, status.Error)

	status = CheckHealth(ctx, fakeConn(false))
	assert.False(t, status.Connected)
	assert.NotEmpty(t, status.Error)

	status = CheckHealth(ctx, nil)
	assert.Equal(t, "client is nil", status.Error)
}

package typing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgellert/hodatay-chat/internal/eventloop"
	"github.com/kgellert/hodatay-chat/internal/lib/clocktest"
	"github.com/kgellert/hodatay-chat/internal/users"
)

type recorder struct {
	events []string
}

func (r *recorder) TypingStart(chatID string) { r.events = append(r.events, "start:"+chatID) }
func (r *recorder) TypingStop(chatID string)  { r.events = append(r.events, "stop:"+chatID) }

func newComposer() (*Composer, *clocktest.Fake, *recorder) {
	c := clocktest.New(time.Unix(0, 0))
	rec := &recorder{}
	return NewComposer(c, eventloop.Inline{}, DefaultIdle, rec), c, rec
}

func TestComposer_IdleEmitsSingleStop(t *testing.T) {
	comp, c, rec := newComposer()

	comp.Keystroke("c1")
	c.Advance(2100 * time.Millisecond)
	c.Advance(10 * time.Second)

	assert.Equal(t, []string{"start:c1", "stop:c1"}, rec.events)
	assert.Equal(t, "", comp.Active())
}

func TestComposer_KeystrokesReArmTimer(t *testing.T) {
	comp, c, rec := newComposer()

	comp.Keystroke("c1")
	c.Advance(1500 * time.Millisecond)
	comp.Keystroke("c1")
	c.Advance(1500 * time.Millisecond)

	assert.Equal(t, []string{"start:c1", "start:c1"}, rec.events)

	c.Advance(600 * time.Millisecond)
	assert.Equal(t, []string{"start:c1", "start:c1", "stop:c1"}, rec.events)
}

func TestComposer_StopCancelsTimer(t *testing.T) {
	comp, c, rec := newComposer()

	comp.Keystroke("c1")
	comp.Stop()
	comp.Stop()
	c.Advance(5 * time.Second)

	assert.Equal(t, []string{"start:c1", "stop:c1"}, rec.events)
	assert.Equal(t, 0, c.Pending())
}

func TestComposer_KeystrokeInOtherChatStopsPrevious(t *testing.T) {
	comp, c, rec := newComposer()

	comp.Keystroke("c1")
	comp.Keystroke("c2")
	c.Advance(3 * time.Second)

	assert.Equal(t, []string{"start:c1", "stop:c1", "start:c2", "stop:c2"}, rec.events)
}

func TestComposer_CancelIsSilent(t *testing.T) {
	comp, c, rec := newComposer()

	comp.Keystroke("c1")
	comp.Cancel()
	c.Advance(5 * time.Second)

	assert.Equal(t, []string{"start:c1"}, rec.events)
}

func TestIndicators_StartStop(t *testing.T) {
	c := clocktest.New(time.Unix(0, 0))
	ind := NewIndicators(c, eventloop.Inline{}, DefaultExpiry, nil)

	assert.True(t, ind.Start("c1", "u2", users.User{ID: "u2", Name: "Ivan"}))
	assert.False(t, ind.Start("c1", "u2", users.User{ID: "u2", Name: "Ivan"}))
	c.Advance(time.Second)
	assert.True(t, ind.Start("c1", "u3", users.User{ID: "u3"}))
	assert.True(t, ind.Start("c2", "u2", users.User{ID: "u2"}))

	entries := ind.ForChat("c1")
	require.Len(t, entries, 2)
	assert.Equal(t, "u2", entries[0].UserID)
	assert.Equal(t, "Ivan", entries[0].User.Name)
	assert.Equal(t, "u3", entries[1].UserID)

	assert.True(t, ind.Stop("c1", "u2"))
	assert.False(t, ind.Stop("c1", "u2"))
	assert.Len(t, ind.ForChat("c1"), 1)
}

func TestIndicators_RenameWhileTyping(t *testing.T) {
	c := clocktest.New(time.Unix(0, 0))
	ind := NewIndicators(c, eventloop.Inline{}, DefaultExpiry, nil)

	require.True(t, ind.Start("c1", "u2", users.User{ID: "u2", Name: "Ivan"}))
	assert.True(t, ind.Start("c1", "u2", users.User{ID: "u2", Name: "Vanya"}))
	assert.False(t, ind.Start("c1", "u2", users.User{ID: "u2", Name: "Vanya"}))

	entries := ind.ForChat("c1")
	require.Len(t, entries, 1)
	assert.Equal(t, "Vanya", entries[0].User.Name)
	assert.True(t, entries[0].Since.Equal(time.Unix(0, 0)))
}

func TestIndicators_ExpireWhenStopIsLost(t *testing.T) {
	c := clocktest.New(time.Unix(0, 0))

	var expired []string
	ind := NewIndicators(c, eventloop.Inline{}, 10*time.Second, func(chatID string) {
		expired = append(expired, chatID)
	})

	ind.Start("c1", "u2", users.User{})
	c.Advance(6 * time.Second)
	ind.Start("c1", "u2", users.User{})
	c.Advance(6 * time.Second)
	assert.Len(t, ind.ForChat("c1"), 1, "refresh re-arms expiry")

	c.Advance(5 * time.Second)
	assert.Empty(t, ind.ForChat("c1"))
	assert.Equal(t, []string{"c1"}, expired)
}

func TestIndicators_ResetCancelsTimers(t *testing.T) {
	c := clocktest.New(time.Unix(0, 0))
	ind := NewIndicators(c, eventloop.Inline{}, time.Second, nil)

	ind.Start("c1", "u2", users.User{})
	ind.Reset()

	assert.Equal(t, 0, ind.Len())
	assert.Equal(t, 0, c.Pending())
}

func TestIndicators_Chats(t *testing.T) {
	c := clocktest.New(time.Unix(0, 0))
	ind := NewIndicators(c, eventloop.Inline{}, DefaultExpiry, nil)

	ind.Start("c2", "u1", users.User{ID: "u1"})
	ind.Start("c1", "u1", users.User{ID: "u1"})
	ind.Start("c2", "u2", users.User{ID: "u2"})

	assert.Equal(t, []string{"c1", "c2"}, ind.Chats())

	ind.Reset()
	assert.Empty(t, ind.Chats())
}

package termquery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsBeforeAnyReply(t *testing.T) {
	term := New(nil)
	caps := term.Snapshot()
	hex := caps.Foreground.Hex()
	assert.Equal(t, "#ffffff", hex)
	assert.False(t, caps.Sixel)
	assert.False(t, caps.Kitty)
}

func TestFeedResolvesForegroundColor(t *testing.T) {
	term := New(nil)
	reply := []byte("\x1b]10;rgb:abcd/abcd/abcd\x1b\\")
	n := term.Feed(reply)
	require.Equal(t, len(reply), n)
	caps := term.Snapshot()
	hex := caps.Foreground.Hex()
	assert.Equal(t, "#ababab", hex)
}

func TestFeedResolvesPixelDimensions(t *testing.T) {
	term := New(nil)
	reply := []byte("\x1b[4;600;800t")
	term.Feed(reply)
	caps := term.Snapshot()
	assert.Equal(t, 600, caps.PixelRows)
	assert.Equal(t, 800, caps.PixelCols)
}

func TestFeedResolvesSixelSupport(t *testing.T) {
	term := New(nil)
	term.Feed([]byte("\x1b[?62;4;22c"))
	assert.True(t, term.Snapshot().Sixel)
}

func TestFeedResolvesKittySupport(t *testing.T) {
	term := New(nil)
	term.Feed([]byte("\x1b_Gi=4294967295;OK\x1b\\"))
	assert.True(t, term.Snapshot().Kitty)
}

func TestWaitForReturnsDefaultOnTimeout(t *testing.T) {
	term := New(nil)
	caps := term.WaitFor(5*time.Millisecond, func() []byte { return nil })
	assert.False(t, caps.Sixel)
}

func TestTmuxWrapping(t *testing.T) {
	body := []byte("\x1b]11;?\x1b\\")
	wrapped := wrapTmux(body)
	assert.Contains(t, string(wrapped), "\x1bPtmux;")
	assert.Contains(t, string(wrapped), "\x1b\x1b]11;?\x1b\x1b\\")
}

package graphics

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProtocol struct {
	transmits, draws, hides, deletes int
}

func (f *fakeProtocol) Transmit(g *Graphic) ([]byte, error) {
	f.transmits++
	return []byte("T"), nil
}
func (f *fakeProtocol) Draw(g *Graphic) ([]byte, error) {
	f.draws++
	return []byte("D"), nil
}
func (f *fakeProtocol) Hide(g *Graphic) []byte {
	f.hides++
	return []byte("H")
}
func (f *fakeProtocol) Delete(g *Graphic) []byte {
	f.deletes++
	return []byte("X")
}

func TestGraphicHiddenWhenVisibilityFilterFalse(t *testing.T) {
	proto := &fakeProtocol{}
	mgr := New(proto, nil)
	visible := true
	g := mgr.Add([]byte("data"), "png", func() bool { return visible }, "")
	g.SetPosition(1, 1, 4, 2)

	out := mgr.AfterRender()
	assert.NotEmpty(t, out)
	assert.Equal(t, 1, proto.draws)

	visible = false
	hideBytes := mgr.BeforeRender()
	assert.NotEmpty(t, hideBytes)
	assert.Equal(t, 1, proto.hides)

	// a graphic that is hidden and stays hidden must not be redrawn or
	// re-hidden on subsequent frames.
	again := mgr.BeforeRender()
	assert.Empty(t, again)
	assert.Equal(t, 1, proto.hides)

	drawn := mgr.AfterRender()
	assert.Empty(t, drawn)
}

func TestAfterRenderSkipsUnchangedGraphic(t *testing.T) {
	proto := &fakeProtocol{}
	mgr := New(proto, nil)
	g := mgr.Add([]byte("data"), "png", func() bool { return true }, "")
	g.SetPosition(0, 0, 2, 2)

	first := mgr.AfterRender()
	require.NotEmpty(t, first)
	assert.Equal(t, 1, proto.draws)

	second := mgr.AfterRender()
	assert.Empty(t, second)
	assert.Equal(t, 1, proto.draws)

	g.SetPosition(1, 0, 2, 2)
	third := mgr.AfterRender()
	assert.NotEmpty(t, third)
	assert.Equal(t, 2, proto.draws)
}

func TestRemoveIssuesDeleteOnlyIfTransmitted(t *testing.T) {
	proto := &fakeProtocol{}
	mgr := New(proto, nil)
	g := mgr.Add([]byte("data"), "png", func() bool { return false }, "")

	assert.Nil(t, mgr.Remove(g.ID))
	assert.Equal(t, 0, proto.deletes)

	g2 := mgr.Add([]byte("data"), "png", func() bool { return true }, "")
	g2.SetPosition(0, 0, 1, 1)
	mgr.AfterRender()
	del := mgr.Remove(g2.ID)
	assert.NotEmpty(t, del)
	assert.Equal(t, 1, proto.deletes)
}

func TestKittyTransmitChunksAt4096(t *testing.T) {
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i % 256)
	}
	g := &Graphic{ID: 7, Data: data, Format: "png"}
	b, err := KittyProtocol{}.Transmit(g)
	require.NoError(t, err)
	s := string(b)
	assert.Contains(t, s, "m=1")
	assert.Contains(t, s, "m=0")
}

func TestKittyDrawReferencesTransmittedID(t *testing.T) {
	g := &Graphic{ID: 3, WidthCells: 10, HeightCells: 5}
	b, err := KittyProtocol{}.Draw(g)
	require.NoError(t, err)
	assert.Contains(t, string(b), "i=3")
	assert.Contains(t, string(b), "c=10")
	assert.Contains(t, string(b), "r=5")
}

func TestEncodeSixelProducesDECSequence(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 50), G: uint8(y * 50), B: 10, A: 255})
		}
	}
	b := encodeSixel(img)
	assert.Contains(t, string(b), "\x1bPq")
	assert.Contains(t, string(b), "\x1b\\")
}

func TestITermDrawIncludesDimensions(t *testing.T) {
	g := &Graphic{Data: []byte("x"), WidthCells: 8, HeightCells: 4}
	b, err := ITermProtocol{}.Draw(g)
	require.NoError(t, err)
	assert.Contains(t, string(b), "width=8")
	assert.Contains(t, string(b), "height=4")
	assert.Contains(t, string(b), "\x1b]1337;File=")
}


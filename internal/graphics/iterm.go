package graphics

import (
	"encoding/base64"
	"fmt"
)

// ITermProtocol implements iTerm2's inline images protocol: a single OSC
// 1337 File= sequence carrying the whole payload, re-sent on every draw
// (iTerm2 gives no persistent handle to hide/delete by reference).
type ITermProtocol struct{}

func (ITermProtocol) Transmit(g *Graphic) ([]byte, error) { return nil, nil }

func (ITermProtocol) Draw(g *Graphic) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(g.Data)
	cmd := fmt.Sprintf(
		"\x1b]1337;File=inline=1;width=%d;height=%d;doNotMoveCursor=1:%s\x07",
		g.WidthCells, g.HeightCells, encoded,
	)
	return []byte(cmd), nil
}

func (ITermProtocol) Hide(g *Graphic) []byte   { return nil }
func (ITermProtocol) Delete(g *Graphic) []byte { return nil }

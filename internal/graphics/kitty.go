package graphics

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// kittyChunkSize is the maximum payload bytes the kitty graphics protocol
// accepts per APC escape before the sender must continue with m=1.
const kittyChunkSize = 4096

// KittyProtocol implements the kitty terminal graphics protocol: the
// image is base64-transmitted once in 4096-byte chunks, then placed,
// hidden, and deleted by referencing the id the transmit step assigned.
type KittyProtocol struct{}

func (KittyProtocol) Transmit(g *Graphic) ([]byte, error) {
	encoded := base64.StdEncoding.EncodeToString(g.Data)
	var buf strings.Builder
	for len(encoded) > 0 {
		chunk := encoded
		more := false
		if len(chunk) > kittyChunkSize {
			chunk, encoded = encoded[:kittyChunkSize], encoded[kittyChunkSize:]
			more = true
		} else {
			encoded = ""
		}
		buf.WriteString(kittyCmd(chunk, map[string]any{
			"a": "t",
			"t": "d",
			"i": g.ID,
			"p": 1,
			"q": 2,
			"f": kittyFormatCode(g.Format),
			"m": boolToInt(more),
		}))
	}
	g.protoID = fmt.Sprintf("%d", g.ID)
	return []byte(buf.String()), nil
}

func (g *Graphic) kittyImageID() int {
	return g.ID
}

func (KittyProtocol) Draw(g *Graphic) ([]byte, error) {
	cmd := kittyCmd("", map[string]any{
		"a": "p",
		"i": g.kittyImageID(),
		"p": 1,
		"m": 0,
		"q": 2,
		"c": g.WidthCells,
		"r": g.HeightCells,
		"C": 1,
		"z": -(1 << 30) - 1,
	})
	return []byte(cmd), nil
}

func (KittyProtocol) Hide(g *Graphic) []byte {
	return []byte(kittyCmd("", map[string]any{
		"a": "d",
		"d": "i",
		"i": g.kittyImageID(),
		"q": 1,
	}))
}

func (KittyProtocol) Delete(g *Graphic) []byte {
	return []byte(kittyCmd("", map[string]any{
		"a": "D",
		"d": "I",
		"i": g.kittyImageID(),
		"q": 2,
	}))
}

func kittyFormatCode(format string) int {
	switch format {
	case "jpeg":
		return 100 // kitty treats all compressed formats the same way (f=100)
	default:
		return 100
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// kittyCmd assembles one APC escape sequence: ESC _ G params [; chunk] ESC \
func kittyCmd(chunk string, params map[string]any) string {
	order := []string{"a", "t", "i", "p", "q", "f", "m", "d", "c", "r", "C", "z"}
	var parts []string
	for _, k := range order {
		v, ok := params[k]
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	cmd := "\x1b_G" + strings.Join(parts, ",")
	if chunk != "" {
		cmd += ";" + chunk
	}
	cmd += "\x1b\\"
	return cmd
}

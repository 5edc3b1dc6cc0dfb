package termquery

import "strings"

// wrapTmux wraps body in a tmux passthrough envelope (ESC Ptmux; <body with
// ESC doubled> ESC \), used when every escape sequence that expects the
// outer terminal to respond must tunnel through the multiplexer (spec
// §4.1, §6).
func wrapTmux(body []byte) []byte {
	doubled := strings.ReplaceAll(string(body), "\x1b", "\x1b\x1b")
	var sb strings.Builder
	sb.WriteString("\x1bPtmux;")
	sb.WriteString(doubled)
	sb.WriteString("\x1b\\")
	return []byte(sb.String())
}

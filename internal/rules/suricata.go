package rules

import (
	"strconv"
	"strings"

	"github.com/eleven-am/warden/internal/domain"
)

// Compile renders a rule in the Suricata dialect accepted by the stateful
// rule group. The rule id travels in msg so that control-plane errors can be
// traced back to it.
func Compile(rule domain.FlowRule, source, destination []string, sid int) string {
	var b strings.Builder
	b.WriteString(string(rule.Action))
	b.WriteByte(' ')
	b.WriteString(rule.Protocol)
	b.WriteByte(' ')
	b.WriteString(renderAddresses(source))
	b.WriteByte(' ')
	b.WriteString(rule.SourcePort.String())
	b.WriteString(" ->  ")
	b.WriteString(renderAddresses(destination))
	b.WriteByte(' ')
	b.WriteString(rule.DestinationPort.String())
	b.WriteString(` (msg: "`)
	b.WriteString(rule.ID)
	b.WriteString(`"; sid: `)
	b.WriteString(strconv.Itoa(sid))
	b.WriteByte(';')
	for _, opt := range rule.Options {
		b.WriteByte(' ')
		b.WriteString(opt.Key)
		if opt.Value != "" {
			b.WriteString(": ")
			b.WriteString(opt.Value)
		}
		b.WriteByte(';')
	}
	b.WriteByte(')')
	return b.String()
}

func renderAddresses(addresses []string) string {
	switch len(addresses) {
	case 0:
		return "any"
	case 1:
		return addresses[0]
	default:
		return "[" + strings.Join(addresses, ",") + "]"
	}
}

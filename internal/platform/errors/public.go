package errors

import (
	"strings"

	"github.com/danz-app/danz/internal/platform/errors/i18n"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PublicMessage resolves a short user-facing message for err. Raw server
// text is never returned.
func PublicMessage(tag language.Tag, err error) string {
	if err == nil {
		return ""
	}
	p := message.NewPrinter(i18n.Match(tag))
	key := i18n.KeyForKind(string(KindOf(err)))
	if text := strings.TrimSpace(p.Sprintf(key)); text != "" && text != key {
		return text
	}
	return p.Sprintf(i18n.KeyUnknown)
}

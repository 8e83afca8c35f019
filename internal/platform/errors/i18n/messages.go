// Package i18n registers the localized, user-facing error copy.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys, one per error kind.
const (
	KeyUnknown         = "error.unknown"
	KeyNetwork         = "error.network"
	KeyUnauthenticated = "error.unauthenticated"
	KeyForbidden       = "error.forbidden"
	KeyGraphQL         = "error.graphql"
	KeyRollback        = "error.rollback"
	KeyInvalidInput    = "error.invalid_input"
	KeyNotFound        = "error.not_found"
	KeyUnavailable     = "error.unavailable"
)

var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

func init() {
	en := language.English
	message.SetString(en, KeyUnknown, "Something went wrong. Please try again.")
	message.SetString(en, KeyNetwork, "We couldn't reach DANZ. Check your connection.")
	message.SetString(en, KeyUnauthenticated, "Please sign in to continue.")
	message.SetString(en, KeyForbidden, "You don't have access to do that.")
	message.SetString(en, KeyGraphQL, "That didn't work. Please try again.")
	message.SetString(en, KeyRollback, "Your change couldn't be saved.")
	message.SetString(en, KeyInvalidInput, "Some details look wrong. Please check and retry.")
	message.SetString(en, KeyNotFound, "We couldn't find that.")
	message.SetString(en, KeyUnavailable, "This is temporarily unavailable.")

	es := language.Spanish
	message.SetString(es, KeyUnknown, "Algo salió mal. Inténtalo de nuevo.")
	message.SetString(es, KeyNetwork, "No pudimos conectar con DANZ. Revisa tu conexión.")
	message.SetString(es, KeyUnauthenticated, "Inicia sesión para continuar.")
	message.SetString(es, KeyForbidden, "No tienes acceso para hacer eso.")
	message.SetString(es, KeyGraphQL, "Eso no funcionó. Inténtalo de nuevo.")
	message.SetString(es, KeyRollback, "No se pudo guardar tu cambio.")
	message.SetString(es, KeyInvalidInput, "Algunos datos no son válidos. Revisa e inténtalo otra vez.")
	message.SetString(es, KeyNotFound, "No encontramos eso.")
	message.SetString(es, KeyUnavailable, "No está disponible por ahora.")
}

// Match resolves tag to the closest supported language.
func Match(tag language.Tag) language.Tag {
	_, idx, _ := matcher.Match(tag)
	return supported[idx]
}

// KeyForKind returns the message key for an error kind string.
func KeyForKind(kind string) string {
	switch kind {
	case "network":
		return KeyNetwork
	case "unauthenticated":
		return KeyUnauthenticated
	case "forbidden":
		return KeyForbidden
	case "graphql":
		return KeyGraphQL
	case "rollback":
		return KeyRollback
	case "invalid_input":
		return KeyInvalidInput
	case "not_found":
		return KeyNotFound
	case "unavailable":
		return KeyUnavailable
	default:
		return KeyUnknown
	}
}

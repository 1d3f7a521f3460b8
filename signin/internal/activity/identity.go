package activity

import (
	"fmt"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// Mode selects how assumed-role identities are keyed.
type Mode string

const (
	// ModeStandard keys assumed roles by their session issuer.
	ModeStandard Mode = "standard"

	// ModeLegacy keys every assumed role as AssumedRole#Unknown, matching
	// records written by earlier deployments.
	ModeLegacy Mode = "legacy"
)

// ParseMode validates a configured identity mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeLegacy:
		return ModeLegacy, nil
	}
	return "", fmt.Errorf("unknown identity mode %q", s)
}

// IdentityKey derives the identity key used to index an event:
//
//	IAMUser-<userName>
//	Root#Root
//	AssumedRole#<sessionIssuer.userName>
//	<type>#Unknown
//
// The key must stay stable for a principal, since the failed-attempt
// counter looks events up by it.
func IdentityKey(ui models.UserIdentity, mode Mode) (string, error) {
	if ui.Type == "" {
		return "", fmt.Errorf("%w: missing detail.userIdentity.type", ErrMalformedEvent)
	}

	switch ui.Type {
	case models.IdentityIAMUser:
		if ui.UserName == "" {
			return "", fmt.Errorf("%w: IAMUser without userName", ErrMalformedEvent)
		}
		return ui.Type + "-" + ui.UserName, nil
	case models.IdentityRoot:
		return ui.Type + "#Root", nil
	case models.IdentityAssumedRole:
		if mode != ModeLegacy {
			if issuer := sessionIssuerName(ui); issuer != "" {
				return ui.Type + "#" + issuer, nil
			}
		}
	}
	return ui.Type + "#Unknown", nil
}

func sessionIssuerName(ui models.UserIdentity) string {
	if ui.SessionContext == nil || ui.SessionContext.SessionIssuer == nil {
		return ""
	}
	return ui.SessionContext.SessionIssuer.UserName
}

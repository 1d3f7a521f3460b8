package activity

import (
	"slices"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// Envelope values admitted by default.
const (
	SourceSignin      = "aws.signin"
	DetailTypeConsole = "AWS Console Sign In via CloudTrail"
	DetailTypeAPICall = "AWS API Call via CloudTrail"
)

func DefaultSources() []string {
	return []string{SourceSignin}
}

func DefaultDetailTypes() []string {
	return []string{DetailTypeConsole, DetailTypeAPICall}
}

// Pattern selects envelopes by source and detail-type. An empty list
// admits any value for that field.
type Pattern struct {
	Sources     []string
	DetailTypes []string
}

func NewPattern(sources, detailTypes []string) Pattern {
	return Pattern{
		Sources:     slices.Clone(sources),
		DetailTypes: slices.Clone(detailTypes),
	}
}

// Admits reports whether ev matches the pattern.
func (p Pattern) Admits(ev *models.ActivityEvent) bool {
	if len(p.Sources) > 0 && !slices.Contains(p.Sources, ev.Source) {
		return false
	}
	if len(p.DetailTypes) > 0 && !slices.Contains(p.DetailTypes, ev.DetailType) {
		return false
	}
	return true
}

package messaging

// Subjects follow {domain}.{action}.{resource}.
const (
	// SubjectSigninEventsRaw carries raw audit envelopes into the signin service.
	SubjectSigninEventsRaw = "signin.events.raw"

	// SubjectNotifyAlertsSignin carries routed sign-in alerts to notifiers.
	SubjectNotifyAlertsSignin = "notify.alerts.signin"

	// SubjectSigninDLQPrefix prefixes dead-lettered alerts; the failure kind
	// is appended, for example signin.dlq.routing.
	SubjectSigninDLQPrefix = "signin.dlq"
)

// Queue groups for load-balanced consumers.
const (
	QueueSigninWorkers = "signin-workers"
	QueueSlackNotifier = "notifier-slack"
)

// DLQSubject returns the dead-letter subject for kind.
func DLQSubject(kind string) string {
	return SubjectSigninDLQPrefix + "." + kind
}

// MatchSubject reports whether subject matches pattern using NATS wildcard
// rules: "*" matches one token and a trailing ">" matches one or more.
func MatchSubject(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	pt := splitTokens(pattern)
	st := splitTokens(subject)
	for i, p := range pt {
		if p == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if p != "*" && p != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

func splitTokens(s string) []string {
	var tokens []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			tokens = append(tokens, s[start:i])
			start = i + 1
		}
	}
	return append(tokens, s[start:])
}

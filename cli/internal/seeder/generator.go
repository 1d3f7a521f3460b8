// Package seeder generates synthetic console sign-in envelopes for
// exercising a running signin service.
package seeder

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// Scenario selects the kind of sign-in activity to generate.
type Scenario string

const (
	// ScenarioRoot signs in as the account root user.
	ScenarioRoot Scenario = "root"
	// ScenarioNoMFA is a successful IAM user sign-in without MFA.
	ScenarioNoMFA Scenario = "no-mfa"
	// ScenarioMFA is a successful IAM user sign-in with MFA.
	ScenarioMFA Scenario = "mfa"
	// ScenarioFailedBurst is a run of failed sign-ins for one IAM user.
	ScenarioFailedBurst Scenario = "failed-burst"
	// ScenarioAssumedRole is a federated sign-in through a role.
	ScenarioAssumedRole Scenario = "assumed-role"
	// ScenarioRandom mixes all of the above.
	ScenarioRandom Scenario = "random"
)

const (
	source       = "aws.signin"
	detailType   = "AWS Console Sign In via CloudTrail"
	eventSource  = "signin.amazonaws.com"
	eventType    = "AwsConsoleSignIn"
	eventVersion = "1.08"
	consoleURL   = "https://console.aws.amazon.com/console/home"
)

// Scenarios lists every scenario accepted by ParseScenario.
func Scenarios() []Scenario {
	return []Scenario{ScenarioRoot, ScenarioNoMFA, ScenarioMFA, ScenarioFailedBurst, ScenarioAssumedRole, ScenarioRandom}
}

func ParseScenario(s string) (Scenario, error) {
	sc := Scenario(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Scenarios(), sc) {
		return sc, nil
	}
	return "", fmt.Errorf("unknown scenario %q", s)
}

// Options tune a Generator.
type Options struct {
	Account string
	Region  string
	// User fixes the IAM user name. A fake one is drawn when empty.
	User string
	// Spacing separates consecutive events in a failed burst.
	Spacing time.Duration
	// Seed makes output reproducible when non-zero.
	Seed int64
}

// Generator builds activity envelopes.
type Generator struct {
	faker *gofakeit.Faker
	opts  Options
	now   func() time.Time
}

func NewGenerator(opts Options) *Generator {
	faker := gofakeit.New(opts.Seed)
	if opts.Account == "" {
		opts.Account = faker.Numerify("############")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	if opts.Spacing <= 0 {
		opts.Spacing = 10 * time.Second
	}
	return &Generator{faker: faker, opts: opts, now: time.Now}
}

// WithClock replaces the clock events are stamped from.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate returns count events for the scenario. A failed burst yields
// count failures for a single user spaced Spacing apart and ending now.
func (g *Generator) Generate(sc Scenario, count int) ([]*models.ActivityEvent, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be positive, got %d", count)
	}
	now := g.now().UTC().Truncate(time.Second)

	events := make([]*models.ActivityEvent, 0, count)
	switch sc {
	case ScenarioFailedBurst:
		user := g.userName()
		start := now.Add(-time.Duration(count-1) * g.opts.Spacing)
		ip := g.faker.IPv4Address()
		for i := range count {
			ev := g.consoleLogin(start.Add(time.Duration(i)*g.opts.Spacing), g.iamUser(user), models.LoginFailure, "No")
			ev.Detail.SourceIPAddress = ip
			events = append(events, ev)
		}
	case ScenarioRandom:
		for range count {
			events = append(events, g.one(g.randomScenario(), now))
		}
	default:
		if _, err := ParseScenario(string(sc)); err != nil {
			return nil, err
		}
		for range count {
			events = append(events, g.one(sc, now))
		}
	}
	return events, nil
}

func (g *Generator) randomScenario() Scenario {
	choices := []Scenario{ScenarioRoot, ScenarioNoMFA, ScenarioMFA, ScenarioFailedBurst, ScenarioAssumedRole}
	return choices[g.faker.Number(0, len(choices)-1)]
}

func (g *Generator) one(sc Scenario, at time.Time) *models.ActivityEvent {
	switch sc {
	case ScenarioRoot:
		return g.consoleLogin(at, g.root(), models.LoginSuccess, g.mfa())
	case ScenarioNoMFA:
		return g.consoleLogin(at, g.iamUser(g.userName()), models.LoginSuccess, "No")
	case ScenarioMFA:
		return g.consoleLogin(at, g.iamUser(g.userName()), models.LoginSuccess, models.MFAUsedYes)
	case ScenarioAssumedRole:
		return g.consoleLogin(at, g.assumedRole(), models.LoginSuccess, g.mfa())
	default:
		return g.consoleLogin(at, g.iamUser(g.userName()), models.LoginFailure, "No")
	}
}

func (g *Generator) consoleLogin(at time.Time, identity models.UserIdentity, outcome, mfa string) *models.ActivityEvent {
	ts := at.Format(time.RFC3339)
	return &models.ActivityEvent{
		Version:    "0",
		ID:         g.faker.UUID(),
		DetailType: detailType,
		Source:     source,
		Account:    g.opts.Account,
		Time:       ts,
		Region:     g.opts.Region,
		Resources:  []string{},
		Detail: models.Detail{
			EventVersion:     eventVersion,
			UserIdentity:     identity,
			EventTime:        ts,
			EventSource:      eventSource,
			EventName:        models.EventConsoleLogin,
			AWSRegion:        g.opts.Region,
			SourceIPAddress:  g.faker.IPv4Address(),
			UserAgent:        g.faker.UserAgent(),
			ResponseElements: &models.ResponseElements{ConsoleLogin: outcome},
			AdditionalEventData: &models.AdditionalEventData{
				LoginTo:       consoleURL,
				MobileVersion: "No",
				MFAUsed:       mfa,
			},
			EventID:            g.faker.UUID(),
			EventType:          eventType,
			RecipientAccountID: g.opts.Account,
		},
	}
}

func (g *Generator) userName() string {
	if g.opts.User != "" {
		return g.opts.User
	}
	return strings.ToLower(g.faker.Username())
}

func (g *Generator) mfa() string {
	if g.faker.Bool() {
		return models.MFAUsedYes
	}
	return "No"
}

func (g *Generator) root() models.UserIdentity {
	return models.UserIdentity{
		Type:        models.IdentityRoot,
		PrincipalID: g.opts.Account,
		ARN:         fmt.Sprintf("arn:aws:iam::%s:root", g.opts.Account),
		AccountID:   g.opts.Account,
	}
}

func (g *Generator) iamUser(name string) models.UserIdentity {
	return models.UserIdentity{
		Type:        models.IdentityIAMUser,
		PrincipalID: "AIDA" + strings.ToUpper(g.faker.LetterN(16)),
		ARN:         fmt.Sprintf("arn:aws:iam::%s:user/%s", g.opts.Account, name),
		AccountID:   g.opts.Account,
		UserName:    name,
	}
}

func (g *Generator) assumedRole() models.UserIdentity {
	role := g.faker.RandomString([]string{"Admin", "ReadOnly", "Developer", "Billing"})
	session := strings.ToLower(g.faker.Username())
	roleID := "AROA" + strings.ToUpper(g.faker.LetterN(16))
	return models.UserIdentity{
		Type:        models.IdentityAssumedRole,
		PrincipalID: roleID + ":" + session,
		ARN:         fmt.Sprintf("arn:aws:sts::%s:assumed-role/%s/%s", g.opts.Account, role, session),
		AccountID:   g.opts.Account,
		SessionContext: &models.SessionContext{
			SessionIssuer: &models.SessionIssuer{
				Type:        "Role",
				PrincipalID: roleID,
				ARN:         fmt.Sprintf("arn:aws:iam::%s:role/%s", g.opts.Account, role),
				AccountID:   g.opts.Account,
				UserName:    role,
			},
		},
	}
}

package projectrun

import (
	"fmt"
	"os"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/roomforge-backend/internal/domain/project"
	"github.com/yungbote/roomforge-backend/internal/providers"
)

// ActivityPolicy is the timeout and retry budget of one activity.
type ActivityPolicy struct {
	StartToClose    time.Duration `json:"startToClose" yaml:"startToClose"`
	Heartbeat       time.Duration `json:"heartbeat,omitempty" yaml:"heartbeat"`
	MaxAttempts     int32         `json:"maxAttempts" yaml:"maxAttempts"`
	InitialInterval time.Duration `json:"initialInterval" yaml:"initialInterval"`
	MaxInterval     time.Duration `json:"maxInterval" yaml:"maxInterval"`
}

type Lifecycle struct {
	Inactivity time.Duration `json:"inactivity" yaml:"inactivity"`
	PurgeDelay time.Duration `json:"purgeDelay" yaml:"purgeDelay"`
	// MaxPermanentFailures abandons the project after that many consecutive
	// permanent failures of the same activity.
	MaxPermanentFailures int `json:"maxPermanentFailures" yaml:"maxPermanentFailures"`
	ContinueAsNewHistory int `json:"continueAsNewHistory" yaml:"continueAsNewHistory"`
}

// Policy travels in the workflow input so replays see the values the run started with.
type Policy struct {
	Activities map[project.ActivityKind]ActivityPolicy `json:"activities" yaml:"activities"`
	Lifecycle  Lifecycle                               `json:"lifecycle" yaml:"lifecycle"`
}

func DefaultPolicy() Policy {
	return Policy{
		Activities: map[project.ActivityKind]ActivityPolicy{
			project.ActivityValidatePhoto:     {StartToClose: time.Minute, MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 30 * time.Second},
			project.ActivityGenerateDesigns:   {StartToClose: 5 * time.Minute, Heartbeat: 45 * time.Second, MaxAttempts: 3, InitialInterval: 5 * time.Second, MaxInterval: time.Minute},
			project.ActivityEditImage:         {StartToClose: 3 * time.Minute, Heartbeat: 45 * time.Second, MaxAttempts: 3, InitialInterval: 5 * time.Second, MaxInterval: time.Minute},
			project.ActivityIntakeTurn:        {StartToClose: time.Minute, MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 20 * time.Second},
			project.ActivityBuildShoppingList: {StartToClose: 2 * time.Minute, MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: time.Minute},
			project.ActivityPurgeProject:      {StartToClose: 2 * time.Minute, MaxAttempts: 10, InitialInterval: 5 * time.Second, MaxInterval: 5 * time.Minute},
			project.ActivitySyncProjectRecord: {StartToClose: 10 * time.Second, MaxAttempts: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second},
		},
		Lifecycle: Lifecycle{
			Inactivity:           48 * time.Hour,
			PurgeDelay:           48 * time.Hour,
			MaxPermanentFailures: 3,
			ContinueAsNewHistory: 10000,
		},
	}
}

// LoadPolicyFile overlays the YAML file at path on the defaults. An empty path
// returns the defaults.
func LoadPolicyFile(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read activity policy: %w", err)
	}
	var overlay Policy
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return p, fmt.Errorf("parse activity policy %s: %w", path, err)
	}
	for kind, ap := range overlay.Activities {
		base, ok := p.Activities[kind]
		if !ok {
			return p, fmt.Errorf("activity policy %s: unknown activity %q", path, kind)
		}
		p.Activities[kind] = mergeActivity(base, ap)
	}
	if overlay.Lifecycle.Inactivity > 0 {
		p.Lifecycle.Inactivity = overlay.Lifecycle.Inactivity
	}
	if overlay.Lifecycle.PurgeDelay > 0 {
		p.Lifecycle.PurgeDelay = overlay.Lifecycle.PurgeDelay
	}
	if overlay.Lifecycle.MaxPermanentFailures > 0 {
		p.Lifecycle.MaxPermanentFailures = overlay.Lifecycle.MaxPermanentFailures
	}
	if overlay.Lifecycle.ContinueAsNewHistory > 0 {
		p.Lifecycle.ContinueAsNewHistory = overlay.Lifecycle.ContinueAsNewHistory
	}
	return p, nil
}

func mergeActivity(base, over ActivityPolicy) ActivityPolicy {
	if over.StartToClose > 0 {
		base.StartToClose = over.StartToClose
	}
	if over.Heartbeat > 0 {
		base.Heartbeat = over.Heartbeat
	}
	if over.MaxAttempts > 0 {
		base.MaxAttempts = over.MaxAttempts
	}
	if over.InitialInterval > 0 {
		base.InitialInterval = over.InitialInterval
	}
	if over.MaxInterval > 0 {
		base.MaxInterval = over.MaxInterval
	}
	return base
}

// nonRetryableTypes are the provider error kinds no retry can fix.
var nonRetryableTypes = []string{
	string(providers.KindContentPolicy),
	string(providers.KindAuth),
	string(providers.KindInvalidInput),
}

func (p Policy) activity(kind project.ActivityKind) ActivityPolicy {
	if ap, ok := p.Activities[kind]; ok {
		return ap
	}
	return DefaultPolicy().Activities[kind]
}

func (p Policy) retryPolicy(ap ActivityPolicy) *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        ap.InitialInterval,
		BackoffCoefficient:     2.0,
		MaximumInterval:        ap.MaxInterval,
		MaximumAttempts:        ap.MaxAttempts,
		NonRetryableErrorTypes: nonRetryableTypes,
	}
}

func (p Policy) ActivityOptions(kind project.ActivityKind) workflow.ActivityOptions {
	ap := p.activity(kind)
	return workflow.ActivityOptions{
		StartToCloseTimeout: ap.StartToClose,
		HeartbeatTimeout:    ap.Heartbeat,
		RetryPolicy:         p.retryPolicy(ap),
	}
}

func (p Policy) LocalActivityOptions(kind project.ActivityKind) workflow.LocalActivityOptions {
	ap := p.activity(kind)
	return workflow.LocalActivityOptions{
		StartToCloseTimeout: ap.StartToClose,
		RetryPolicy:         p.retryPolicy(ap),
	}
}

func (p Policy) lifecycle() Lifecycle {
	def := DefaultPolicy().Lifecycle
	l := p.Lifecycle
	if l.Inactivity <= 0 {
		l.Inactivity = def.Inactivity
	}
	if l.PurgeDelay <= 0 {
		l.PurgeDelay = def.PurgeDelay
	}
	if l.MaxPermanentFailures <= 0 {
		l.MaxPermanentFailures = def.MaxPermanentFailures
	}
	if l.ContinueAsNewHistory <= 0 {
		l.ContinueAsNewHistory = def.ContinueAsNewHistory
	}
	return l
}

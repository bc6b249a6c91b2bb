package optimizer

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/stepwise/api/schemas"
	"github.com/xkilldash9x/stepwise/internal/config"
)

const (
	u0 = "https://crm.example.com/dashboard"
	u1 = "https://crm.example.com/contacts"
	u2 = "https://crm.example.com/contacts/new"
	u3 = "https://crm.example.com/reports"
)

// ts hands out increasing timestamps so steps stay distinguishable in diffs.
var ts int64

func next() int64 {
	ts += 1000
	return ts
}

func click(url, text, selector string) schemas.WorkflowStep {
	return schemas.WorkflowStep{
		Type:      schemas.StepClick,
		Timestamp: next(),
		TabID:     1,
		Payload:   schemas.ClickPayload{URL: url, Selector: selector},
		Element:   &schemas.ElementContext{Text: text, Selector: selector},
	}
}

func input(url, selector, value string) schemas.WorkflowStep {
	return schemas.WorkflowStep{
		Type:      schemas.StepInput,
		Timestamp: next(),
		TabID:     1,
		Payload:   schemas.InputPayload{URL: url, Selector: selector, Value: value},
		Element:   &schemas.ElementContext{Selector: selector, TagName: "input"},
	}
}

func nav(url string) schemas.WorkflowStep {
	return schemas.WorkflowStep{
		Type:      schemas.StepNavigation,
		Timestamp: next(),
		TabID:     1,
		Payload:   schemas.NavigationPayload{URL: url},
	}
}

func scroll(url string) schemas.WorkflowStep {
	return schemas.WorkflowStep{
		Type:      schemas.StepScroll,
		Timestamp: next(),
		TabID:     1,
		Payload:   schemas.ScrollPayload{URL: url, ScrollY: 600},
	}
}

func key(url, k string, modifiers ...string) schemas.WorkflowStep {
	return schemas.WorkflowStep{
		Type:      schemas.StepKeyboard,
		Timestamp: next(),
		TabID:     1,
		Payload:   schemas.KeyboardPayload{URL: url, Key: k, Modifiers: modifiers},
	}
}

func tabSwitch() schemas.WorkflowStep {
	return schemas.WorkflowStep{
		Type:      schemas.StepTabSwitch,
		Timestamp: next(),
		TabID:     2,
		Payload:   schemas.TabSwitchPayload{FromTabID: 1, ToTabID: 2},
	}
}

// menu is a click that the rule table always treats as navigation.
func menu(url string) schemas.WorkflowStep {
	return click(url, "Open menu", "")
}

func testOptimizerConfig() config.OptimizerConfig {
	return config.OptimizerConfig{Enabled: true, Concurrency: 4, ConfidenceThreshold: 0.7}
}

func enabledOracleConfig() config.OracleConfig {
	return config.OracleConfig{Enabled: true, Provider: config.OracleProviderHTTP, Endpoint: "http://oracle", Timeout: 2 * time.Second}
}

func newTestOptimizer(t *testing.T, orc schemas.Oracle) (*Optimizer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	oracleCfg := config.OracleConfig{Timeout: time.Second}
	if orc != nil {
		oracleCfg = enabledOracleConfig()
	}
	return New(testOptimizerConfig(), oracleCfg, orc, zap.New(core)), logs
}

func indices(seqs []schemas.NavigationSequence) [][2]int {
	out := make([][2]int, len(seqs))
	for i, s := range seqs {
		out[i] = [2]int{s.StartIndex, s.EndIndex}
	}
	return out
}

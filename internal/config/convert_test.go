package config

import (
	"testing"
	"time"
)

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Tools.ShellWhitelist = []string{"ls"}
	cfg.Database.Redis.SessionTTLSecs = 60
	cfg.Providers = []ProviderConfig{{ID: "p", Type: "openai", TimeoutSecs: 5, Models: []string{"m"}}}

	if p := cfg.ToolPolicy(); p.Timeout != 30*time.Second || p.MaxRetries != 3 || !p.Sandbox {
		t.Errorf("tool policy %+v", p)
	}
	if o := cfg.BuiltinOptions(); len(o.ShellWhitelist) != 1 || o.HTTPTimeout != 30*time.Second {
		t.Errorf("builtin options %+v", o)
	}
	cfg.Tools.Sandbox = false
	if o := cfg.BuiltinOptions(); o.ShellWhitelist != nil {
		t.Errorf("whitelist should be dropped without sandbox: %v", o.ShellWhitelist)
	}

	s := cfg.SupervisorConfig()
	if s.MaxSteps != 20 || s.MaxSubGoals != 10 || s.MaxIterations != 10 || s.AgentTimeout != 30*time.Second {
		t.Errorf("supervisor config %+v", s)
	}
	if h := cfg.HealthConfig(); h.HeartbeatInterval != 5*time.Second || h.Timeout != 30*time.Second || !h.AutoRestart {
		t.Errorf("health config %+v", h)
	}
	if st := cfg.StoreOptions(); st.Backend != "memory" || st.RedisTTL != time.Minute || st.CacheSize != 128 {
		t.Errorf("store options %+v", st)
	}
	if c := cfg.ChatOptions(); !c.JSONMode || c.Model != "gpt-4o-mini" || c.MaxTokens != 2000 {
		t.Errorf("chat options %+v", c)
	}
	if ps := cfg.ProviderConfigs(); len(ps) != 1 || ps[0].Timeout != 5*time.Second || ps[0].DefaultModel("") != "m" {
		t.Errorf("providers %+v", ps)
	}
}

func TestSubstituteEnv(t *testing.T) {
	t.Setenv("TASKFORCE_TEST_KEY", "secret")
	got := string(substituteEnv([]byte(`a: ${TASKFORCE_TEST_KEY}, b: ${TASKFORCE_UNSET_VAR:fallback}, c: ${TASKFORCE_UNSET_VAR}`)))
	if got != "a: secret, b: fallback, c: " {
		t.Errorf("got %q", got)
	}
}

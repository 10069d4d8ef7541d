package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cases := []struct {
		name string
		ok   bool
	}{
		{"prom port", cfg.PromPort == 9108},
		{"accounts db", cfg.AccountsDB == "storage/reddit/accounts.db"},
		{"poll seconds", cfg.PollSeconds == 60},
		{"idle sleep", cfg.IdleSleep == 300},
		{"job cooldown min", cfg.JobCooldownMin == 1200},
		{"job cooldown max", cfg.JobCooldownMax == 1800},
		{"health interval", cfg.HealthInterval == 60},
		{"health cooldown bad", cfg.HealthCooldownBad == 60},
		{"health cooldown rate", cfg.HealthCooldownRate == 120},
		{"quarantine fails", cfg.HealthQuarantineFails == 5},
		{"rate bucket capacity", cfg.RateBucketCapacity == 5.0},
		{"rate bucket refill", cfg.RateBucketRefill == 2.0},
		{"cooldown base", cfg.CooldownBase == 60},
	}
	for _, c := range cases {
		if !c.ok {
			t.Errorf("default mismatch: %s", c.name)
		}
	}
}

func TestLoadOverride(t *testing.T) {
	t.Setenv("ORCH_POLL_SECONDS", "15")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PollSeconds != 15 {
		t.Errorf("expected override to apply, got %d", cfg.PollSeconds)
	}
}

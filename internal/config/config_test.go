package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/carevault_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.TokenTTLStandard != 8*time.Hour {
		t.Errorf("expected standard token TTL 8h, got %v", cfg.TokenTTLStandard)
	}
	if cfg.TokenTTLEmergency != time.Hour {
		t.Errorf("expected emergency token TTL 1h, got %v", cfg.TokenTTLEmergency)
	}
	if cfg.TokenTTLSecret != 2*time.Hour {
		t.Errorf("expected secret token TTL 2h, got %v", cfg.TokenTTLSecret)
	}
	if cfg.EmergencyAccessWindow != 24*time.Hour {
		t.Errorf("expected emergency window 24h, got %v", cfg.EmergencyAccessWindow)
	}
	if cfg.SecretAccessWindow != 2*time.Hour {
		t.Errorf("expected secret window 2h, got %v", cfg.SecretAccessWindow)
	}
	if !cfg.EmergencyNotifyPatient {
		t.Error("emergency access must notify the patient by default")
	}
	if cfg.SecretNotifyPatient {
		t.Error("secret access must not notify the patient by default")
	}
}

func TestLoad_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Error("expected error without DATABASE_URL")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/carevault_test")
	t.Setenv("PORT", "9000")
	t.Setenv("TOKEN_TTL_STANDARD", "4h")
	t.Setenv("SECRET_NOTIFY_PATIENT", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.TokenTTLStandard != 4*time.Hour {
		t.Errorf("expected standard token TTL 4h, got %v", cfg.TokenTTLStandard)
	}
	if !cfg.SecretNotifyPatient {
		t.Error("expected SECRET_NOTIFY_PATIENT override to apply")
	}
}

func TestValidate_ProductionRequiresKeys(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/carevault_test")
	t.Setenv("ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation to fail without signing keys in production")
	}

	cfg.AuthSigningKey = "identity-key"
	cfg.CapabilitySigningKey = "capability-key"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error with keys set: %v", err)
	}
}

func TestValidate_RejectsNonPositiveDurations(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/carevault_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.TokenTTLStandard = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation to fail with a zero token TTL")
	}

	cfg, _ = Load()
	cfg.EmergencyAccessWindow = -time.Hour
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation to fail with a negative override window")
	}
}

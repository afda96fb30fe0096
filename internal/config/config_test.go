package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("INTAKE_ALLOW_UNPRICED", "")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != "" {
		t.Fatalf("explicit empty HTTP_ADDR should be kept, got %q", cfg.HTTPAddr)
	}
	if cfg.IntakeAllowUnpriced {
		t.Fatal("unpriced intake should default to off")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("MAX_BODY_BYTES", "2048")
	t.Setenv("INTAKE_ALLOW_UNPRICED", "yes")
	t.Setenv("IMAP_PORT", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxBodyBytes != 2048 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if !cfg.IntakeAllowUnpriced {
		t.Fatal("INTAKE_ALLOW_UNPRICED=yes not honored")
	}
	if cfg.IMAPPort != 993 {
		t.Fatalf("IMAPPort=%d", cfg.IMAPPort)
	}
}

func TestRequire(t *testing.T) {
	var cfg Config
	if err := cfg.Require("IMAP_HOST", "  "); err == nil {
		t.Fatal("expected error")
	}
	if err := cfg.Require("IMAP_HOST", "mail.example.com"); err != nil {
		t.Fatal(err)
	}
}

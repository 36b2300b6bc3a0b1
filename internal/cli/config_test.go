package cli

import (
	"strings"
	"testing"
)

func TestConfigShowCmd(t *testing.T) {
	useTestConfig(t)

	out := captureOutput(t, configShowCmd)
	if err := configShowCmd.RunE(configShowCmd, []string{}); err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"# base path:", "poll:", "max_attempts: 5", "channels:", "- hiring"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestConfigValidateCmd(t *testing.T) {
	useTestConfig(t)

	out := captureOutput(t, configValidateCmd)
	if err := configValidateCmd.RunE(configValidateCmd, []string{}); err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out.String(), "valid") {
		t.Errorf("unexpected output: %q", out.String())
	}

	Config.Channel.Max = Config.Channel.Min
	Config.Source.URL = "ftp://example.com"
	err := configValidateCmd.RunE(configValidateCmd, []string{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"channel.max", "source.url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

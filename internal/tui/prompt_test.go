package tui

import (
	"testing"
)

func TestShouldPromptInCI(t *testing.T) {
	for _, env := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL"} {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, "true")
			if ShouldPrompt() {
				t.Errorf("ShouldPrompt() = true with %s set", env)
			}
		})
	}
}

func TestPromptCredentialsSkipsKnownFields(t *testing.T) {
	in := Credentials{Email: "a@b.com", Password: "secret-pass"}

	got, err := PromptCredentials(in)
	if err != nil {
		t.Fatalf("PromptCredentials: %v", err)
	}
	if got != in {
		t.Errorf("PromptCredentials() = %+v, want %+v", got, in)
	}
}

func TestRequired(t *testing.T) {
	if err := required("email")("  "); err == nil {
		t.Error("blank value should fail")
	}
	if err := required("email")("a@b.com"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// Interactive forms need a terminal; they are exercised by hand.

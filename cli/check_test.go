package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestCheckRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JOBS_FILE", "")

	cmd := checkCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("check without DATABASE_URL err = %v", err)
	}
	if strings.Contains(out.String(), "no open alerts") {
		t.Fatalf("check reported success: %q", out.String())
	}
}

func TestNextPrintsOccurrences(t *testing.T) {
	cmd := nextCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"0 9 * * mon-fri", "--after", "2024-01-05T10:00:00Z", "-n", "2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("next: %v", err)
	}
	want := "2024-01-08T09:00:00Z\n2024-01-09T09:00:00Z\n"
	if out.String() != want {
		t.Fatalf("next output = %q, want %q", out.String(), want)
	}
}

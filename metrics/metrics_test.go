package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsRepeatable(t *testing.T) {
	Init("v1.0.0")
	Init("v1.0.1")

	if n := testutil.CollectAndCount(BuildInfo); n != 1 {
		t.Fatalf("build info series = %d, want 1", n)
	}
	if v := testutil.ToFloat64(BuildInfo.WithLabelValues("v1.0.1")); v != 1 {
		t.Fatalf("cronwatch_info{version=v1.0.1} = %v, want 1", v)
	}
}

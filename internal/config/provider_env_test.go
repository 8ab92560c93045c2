package config

import (
	"context"
	"testing"
)

func TestEnvVarProvider(t *testing.T) {
	t.Setenv("ALARMRELAY_TEST_SECRET", "s3cret")

	got, err := NewEnvVarProvider().GetParametersBatch(context.Background(),
		[]string{"ALARMRELAY_TEST_SECRET", "ALARMRELAY_TEST_UNSET"})
	if err != nil {
		t.Fatalf("GetParametersBatch returned error: %v", err)
	}
	if got["ALARMRELAY_TEST_SECRET"] != "s3cret" {
		t.Errorf("ALARMRELAY_TEST_SECRET = %q, want s3cret", got["ALARMRELAY_TEST_SECRET"])
	}
	if _, ok := got["ALARMRELAY_TEST_UNSET"]; ok {
		t.Error("unset keys should be omitted")
	}
}

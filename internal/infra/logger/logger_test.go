package logger

import (
	"testing"

	"github.com/sirupsen/logrus"

	"ajo_ledger/internal/infra/config"
)

func TestInitFallsBackToInfo(t *testing.T) {
	Init(&config.AppConfig{LogLevel: "chatty", Environment: "development"})
	if Log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %s, want info", Log.GetLevel())
	}

	Init(&config.AppConfig{LogLevel: "debug", Environment: "production"})
	if Log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s, want debug", Log.GetLevel())
	}
	if _, ok := Log.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("production must log JSON, got %T", Log.Formatter)
	}
}

func TestWithRequestAddsCorrelationID(t *testing.T) {
	t.Parallel()
	base := WithService("slot_allocator")
	a := WithRequest(base)
	b := WithRequest(base)

	if a.Data["service"] != "slot_allocator" {
		t.Fatalf("service field lost: %v", a.Data)
	}
	idA, _ := a.Data["request_id"].(string)
	idB, _ := b.Data["request_id"].(string)
	if idA == "" || idA == idB {
		t.Fatalf("request ids must be set and distinct: %q %q", idA, idB)
	}
	if _, ok := base.Data["request_id"]; ok {
		t.Fatalf("base entry must not be modified")
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/Jackzmc/flashforge-api-server/internal/config"
	"github.com/Jackzmc/flashforge-api-server/internal/models"
	"github.com/Jackzmc/flashforge-api-server/internal/printer"
	"github.com/Jackzmc/flashforge-api-server/internal/printer/printertest"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Server{LogLevel: "warn", LogFormat: "json"})

	logger.Info("hidden")
	logger.Warn("shown", "printer", "p1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"printer":"p1"`) {
		t.Errorf("json output = %s", out)
	}
	if !newLogger(&buf, config.Server{LogLevel: "debug"}).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
}

func TestNotifyRoutes(t *testing.T) {
	cfg := &config.Config{
		Notifications: config.Notifications{
			OnDone:   config.Destinations{Webhooks: []string{"https://hook"}},
			OnFailed: config.Destinations{Emails: []string{"a@example.com"}},
			Printers: map[string]config.PrinterNotifications{
				"quiet": {OnDone: &config.Destinations{}},
			},
		},
		SMTP: &config.SMTP{Host: "smtp", Port: 25, User: "u", From: "f@example.com", Encryption: "none"},
	}
	routes := notifyRoutes(cfg)

	if got := routes.Destinations("p1", models.JobCompleted); len(got) != 1 || got[0].Name() != "webhook:https://hook" {
		t.Errorf("done = %v", got)
	}
	if got := routes.Destinations("p1", models.JobFailed); len(got) != 1 || !strings.HasPrefix(got[0].Name(), "email:") {
		t.Errorf("failed = %v", got)
	}
	if got := routes.Destinations("quiet", models.JobCompleted); len(got) != 0 {
		t.Errorf("quiet override = %v", got)
	}
	if routes.SMTP.Username != "u" || routes.SMTP.Encryption != "none" {
		t.Errorf("SMTP = %+v", routes.SMTP)
	}
}

func TestStatusTable(t *testing.T) {
	srv := printertest.New()
	defer srv.Close()
	srv.SetStatus("BUILDING_FROM_SD", "MOVING")
	srv.SetFile("benchy.gx")

	down := models.PrinterIdentity{Name: "down", Host: "127.0.0.1", ControlPort: 1}
	registry, err := printer.NewRegistry([]models.PrinterIdentity{srv.Identity("up"), down}, printer.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close(context.Background())

	results := pollAll(context.Background(), registry)
	if results[0].err != nil || results[1].err == nil {
		t.Fatalf("results = %+v", results)
	}
	var connErr *printer.ConnectionError
	if !errors.As(results[1].err, &connErr) {
		t.Errorf("down error = %v", results[1].err)
	}

	var buf bytes.Buffer
	renderStatus(&buf, results)
	out := buf.String()
	for _, want := range []string{"up", "printing", "benchy.gx", "down", "offline"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/fx"
)

func TestModuleBuildsAppWithoutBus(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	content := "database:\n  dsn: " + filepath.ToSlash(filepath.Join(dir, "app.sqlite")) + "\n"
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	ctx := context.Background()
	var app *App
	fxApp := fx.New(
		Module,
		fx.NopLogger,
		fx.Provide(func() context.Context { return ctx }),
		fx.Provide(
			fx.Annotate(
				func() string { return cfgFile },
				fx.ResultTags(`name:"configFile"`),
			),
		),
		fx.Populate(&app),
	)
	if err := fxApp.Err(); err != nil {
		t.Fatalf("fx.New() error = %v", err)
	}
	if err := fxApp.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		if err := fxApp.Stop(ctx); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}()

	if app.Bus != nil {
		t.Fatalf("Bus = %v, want nil without nats_url", app.Bus)
	}
	if app.Linking == nil || app.Intake == nil || app.Metrics == nil {
		t.Fatalf("App has unset services: %+v", app)
	}
	if err := app.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema() error = %v", err)
	}

	summary, err := app.Linking.RebuildAll(ctx)
	if err != nil {
		t.Fatalf("RebuildAll() error = %v", err)
	}
	if summary.Total != 0 {
		t.Fatalf("RebuildAll() total = %d, want 0", summary.Total)
	}

	families, err := app.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "licenselink_linking_rebuilds_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("rebuild counter not registered on the app registry")
	}
}

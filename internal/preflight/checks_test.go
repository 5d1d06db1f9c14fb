package preflight

import (
	"path/filepath"
	"testing"

	"paperdigest/internal/config"
	"paperdigest/internal/database"
)

func setupPreflightTest(t *testing.T, initialize bool) *database.DB {
	t.Helper()

	db, err := database.New("sqlite://" + filepath.Join(t.TempDir(), "preflight.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if initialize {
		if err := db.Initialize(); err != nil {
			t.Fatalf("Failed to initialize test database: %v", err)
		}
	}
	return db
}

func findResult(t *testing.T, results []CheckResult, name string) CheckResult {
	t.Helper()
	for _, r := range results {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("No result named %q", name)
	return CheckResult{}
}

func TestRunAll_Healthy(t *testing.T) {
	db := setupPreflightTest(t, true)
	cfg := &config.Config{JWTSecret: "secret", SuperadminUserIDs: []string{"admin"}}

	results := NewChecker(db, cfg).RunAll()
	if HasFailures(results) {
		t.Fatalf("Expected no failures, got %+v", results)
	}
	for _, r := range results {
		if r.Status != "pass" {
			t.Errorf("Expected %s to pass, got %s: %s", r.Name, r.Status, r.Message)
		}
	}

	schema := findResult(t, results, "Database Schema")
	if schema.Message != "All 2 required tables exist" {
		t.Errorf("Unexpected schema message: %s", schema.Message)
	}
}

func TestCheckDatabaseSchema_MissingTables(t *testing.T) {
	db := setupPreflightTest(t, false)

	result := NewChecker(db, &config.Config{}).checkDatabaseSchema()
	if result.Status != "fail" {
		t.Errorf("Expected status 'fail', got '%s'", result.Status)
	}
}

func TestCheckDatabaseConnection_Failure(t *testing.T) {
	db := setupPreflightTest(t, true)
	db.Close()

	result := NewChecker(db, &config.Config{}).checkDatabaseConnection()
	if result.Status != "fail" {
		t.Errorf("Expected status 'fail', got '%s'", result.Status)
	}
	if result.Error == nil {
		t.Error("Expected error to be set")
	}
}

func TestCheckAuthentication(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{"dev without secret", config.Config{Environment: "development"}, "warning"},
		{"production without secret", config.Config{Environment: "production"}, "fail"},
		{"no superadmins", config.Config{JWTSecret: "s"}, "warning"},
		{"configured", config.Config{JWTSecret: "s", SuperadminUserIDs: []string{"a"}}, "pass"},
	}

	db := setupPreflightTest(t, true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			result := NewChecker(db, &cfg).checkAuthentication()
			if result.Status != tt.want {
				t.Errorf("Expected %s, got %s (%s)", tt.want, result.Status, result.Message)
			}
		})
	}

	results := []CheckResult{{Status: "pass"}, {Status: "warning"}}
	if HasFailures(results) {
		t.Error("Warnings are not failures")
	}
	if !HasFailures(append(results, CheckResult{Status: "fail"})) {
		t.Error("Expected failure to be detected")
	}
}

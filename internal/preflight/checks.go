package preflight

import (
	"context"
	"fmt"
	"log"
	"time"

	"paperdigest/internal/config"
	"paperdigest/internal/database"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// RequiredTables must exist before the server accepts requests
var RequiredTables = []string{"users", "summaries"}

// Checker performs pre-flight checks before server starts
type Checker struct {
	db  *database.DB
	cfg *config.Config
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, cfg *config.Config) *Checker {
	return &Checker{
		db:  db,
		cfg: cfg,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkDatabaseConnection(),
		c.checkDatabaseSchema(),
		c.checkAuthentication(),
	}

	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("📊 Pre-flight summary: %d passed, %d failed, %d warnings", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

func (c *Checker) checkDatabaseConnection() CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{
			Name:    "Database Connection",
			Status:  "fail",
			Message: "Cannot connect to database",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "Database Connection",
		Status:  "pass",
		Message: fmt.Sprintf("Connected (%s)", c.db.Dialect),
	}
}

// checkDatabaseSchema verifies all required tables exist
func (c *Checker) checkDatabaseSchema() CheckResult {
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if c.db.Dialect == database.DialectMySQL {
		query = "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?"
	}

	for _, table := range RequiredTables {
		var count int
		err := c.db.QueryRow(query, table).Scan(&count)
		if err != nil || count == 0 {
			return CheckResult{
				Name:    "Database Schema",
				Status:  "fail",
				Message: fmt.Sprintf("Required table '%s' not found", table),
				Error:   err,
			}
		}
	}

	return CheckResult{
		Name:    "Database Schema",
		Status:  "pass",
		Message: fmt.Sprintf("All %d required tables exist", len(RequiredTables)),
	}
}

func (c *Checker) checkAuthentication() CheckResult {
	if c.cfg.JWTSecret == "" {
		status := "warning"
		if c.cfg.IsProduction() {
			status = "fail"
		}
		return CheckResult{
			Name:    "Authentication",
			Status:  status,
			Message: "JWT_SECRET not set (requests run as the development user)",
		}
	}

	if len(c.cfg.SuperadminUserIDs) == 0 {
		return CheckResult{
			Name:    "Authentication",
			Status:  "warning",
			Message: "No SUPERADMIN_USER_IDS configured; /api/metrics only accepts admin role tokens",
		}
	}

	return CheckResult{
		Name:    "Authentication",
		Status:  "pass",
		Message: fmt.Sprintf("JWT enabled with %d superadmin(s)", len(c.cfg.SuperadminUserIDs)),
	}
}

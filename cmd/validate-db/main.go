package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Name     string `yaml:"name"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"database"`
}

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run main.go <config.yaml>")
	}

	// Load config
	configData, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to read config: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(configData, &cfg); err != nil {
		log.Fatalf("Failed to parse config: %v", err)
	}

	// Connect to database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	fmt.Println("✅ Database connection successful")

	// Validate schema
	if err := validateSchema(db); err != nil {
		log.Fatalf("❌ Schema validation failed: %v", err)
	}

	fmt.Println("✅ All schema validations passed")
	fmt.Println("🎉 Database is ready for QoSFlow!")
}

func validateSchema(db *sql.DB) error {
	// Check required tables
	requiredTables := []string{
		"qos_policies", "traffic_classes", "traffic_classifiers",
		"network_devices", "interface_qos_policies",
	}

	fmt.Println("\n🔍 Validating required tables...")
	for _, table := range requiredTables {
		if err := checkTable(db, table); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
		fmt.Printf("  ✅ %s\n", table)
	}

	// Check required columns in critical tables
	fmt.Println("\n🔍 Validating critical table structures...")

	// qos_policies table
	policyCols := map[string]string{
		"id": "varchar", "name": "varchar", "bandwidth_limit": "integer",
		"priority": "integer", "is_active": "boolean",
	}
	if err := checkColumns(db, "qos_policies", policyCols); err != nil {
		return fmt.Errorf("qos_policies table structure: %w", err)
	}
	fmt.Println("  ✅ qos_policies table structure")

	// traffic_classes table
	classCols := map[string]string{
		"id": "varchar", "policy_id": "varchar", "name": "varchar",
		"priority": "integer", "min_bandwidth": "integer",
		"max_bandwidth": "integer", "dscp": "varchar", "burst": "integer",
	}
	if err := checkColumns(db, "traffic_classes", classCols); err != nil {
		return fmt.Errorf("traffic_classes table structure: %w", err)
	}
	fmt.Println("  ✅ traffic_classes table structure")

	// interface_qos_policies table
	assocCols := map[string]string{
		"id": "varchar", "interface_name": "varchar", "policy_id": "varchar",
		"direction": "varchar", "is_active": "boolean",
	}
	if err := checkColumns(db, "interface_qos_policies", assocCols); err != nil {
		return fmt.Errorf("interface_qos_policies table structure: %w", err)
	}
	fmt.Println("  ✅ interface_qos_policies table structure")

	// Check data integrity
	fmt.Println("\n🔍 Validating data integrity...")

	// Check for orphaned traffic classes
	var orphanedClasses int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM traffic_classes c
		LEFT JOIN qos_policies p ON c.policy_id = p.id
		WHERE p.id IS NULL`).Scan(&orphanedClasses)
	if err != nil {
		return fmt.Errorf("checking orphaned classes: %w", err)
	}
	if orphanedClasses > 0 {
		fmt.Printf("  ⚠️  Found %d orphaned traffic classes (classes without policies)\n", orphanedClasses)
	} else {
		fmt.Println("  ✅ No orphaned traffic classes")
	}

	// Check for active associations pointing at missing policies
	var danglingAssociations int
	err = db.QueryRow(`
		SELECT COUNT(*) FROM interface_qos_policies a
		LEFT JOIN qos_policies p ON a.policy_id = p.id
		WHERE a.is_active AND p.id IS NULL`).Scan(&danglingAssociations)
	if err != nil {
		return fmt.Errorf("checking dangling associations: %w", err)
	}
	if danglingAssociations > 0 {
		fmt.Printf("  ⚠️  Found %d active associations without policies\n", danglingAssociations)
	} else {
		fmt.Println("  ✅ No dangling associations")
	}

	// Check for policies whose guarantees exceed the bandwidth limit
	var oversubscribed int
	err = db.QueryRow(`
		SELECT COUNT(*) FROM qos_policies p
		WHERE p.bandwidth_limit < (
			SELECT COALESCE(SUM(c.min_bandwidth), 0)
			FROM traffic_classes c WHERE c.policy_id = p.id)`).Scan(&oversubscribed)
	if err != nil {
		return fmt.Errorf("checking bandwidth invariant: %w", err)
	}
	if oversubscribed > 0 {
		fmt.Printf("  ⚠️  Found %d policies with guarantees exceeding their bandwidth limit\n", oversubscribed)
	} else {
		fmt.Println("  ✅ All policies respect the bandwidth invariant")
	}

	// Show some statistics
	fmt.Println("\n📊 Database statistics:")
	stats := map[string]string{
		"Total policies":      "SELECT COUNT(*) FROM qos_policies",
		"Active policies":     "SELECT COUNT(*) FROM qos_policies WHERE is_active = true",
		"Traffic classes":     "SELECT COUNT(*) FROM traffic_classes",
		"Network devices":     "SELECT COUNT(*) FROM network_devices",
		"Active associations": "SELECT COUNT(*) FROM interface_qos_policies WHERE is_active = true",
	}

	for name, query := range stats {
		var count int
		if err := db.QueryRow(query).Scan(&count); err != nil {
			fmt.Printf("  ❓ %s: error getting count\n", name)
		} else {
			fmt.Printf("  📈 %s: %d\n", name, count)
		}
	}

	return nil
}

func checkTable(db *sql.DB, tableName string) error {
	var exists bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`, tableName).Scan(&exists)

	if err != nil {
		return fmt.Errorf("query error: %w", err)
	}

	if !exists {
		return fmt.Errorf("table does not exist")
	}

	return nil
}

func checkColumns(db *sql.DB, tableName string, requiredCols map[string]string) error {
	for colName, expectedType := range requiredCols {
		var dataType string
		err := db.QueryRow(`
			SELECT data_type FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2`, tableName, colName).Scan(&dataType)

		if err == sql.ErrNoRows {
			return fmt.Errorf("column %s does not exist", colName)
		}
		if err != nil {
			return fmt.Errorf("query error for column %s: %w", colName, err)
		}

		// Simple type mapping check
		if !isCompatibleType(dataType, expectedType) {
			return fmt.Errorf("column %s has type %s, expected compatible with %s",
				colName, dataType, expectedType)
		}
	}
	return nil
}

func isCompatibleType(actual, expected string) bool {
	// Simple type compatibility check
	compatible := map[string][]string{
		"integer":   {"integer", "bigint", "int", "int4", "int8"},
		"varchar":   {"character varying", "varchar", "text", "character", "uuid"},
		"boolean":   {"boolean", "bool"},
		"timestamp": {"timestamp without time zone", "timestamp", "timestamptz"},
	}

	if expectedTypes, exists := compatible[expected]; exists {
		for _, validType := range expectedTypes {
			if actual == validType {
				return true
			}
		}
	}

	return actual == expected
}

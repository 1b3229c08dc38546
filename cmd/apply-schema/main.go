package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gridstream-data/common/database"
	"gridstream-data/internal/config"
)

// 按语句切分并执行 schema/schema.sql（或指定的 SQL 文件）
func main() {
	schemaFile := "schema/schema.sql"
	if len(os.Args) > 1 {
		schemaFile = os.Args[1]
	}

	sqlContent, err := os.ReadFile(schemaFile)
	if err != nil {
		log.Fatalf("Failed to read schema file: %v", err)
	}

	cfg := config.Load()
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Cannot connect to database: %v", err)
	}
	defer db.Close()

	fmt.Printf("Connected to database: %s\n", cfg.Database.Database)

	statements := splitStatements(string(sqlContent))
	for i, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			preview := stmt
			if len(preview) > 100 {
				preview = preview[:100]
			}
			log.Fatalf("Failed to execute statement %d/%d: %v\nStatement: %s", i+1, len(statements), err, preview)
		}
		fmt.Printf("Executed statement %d/%d\n", i+1, len(statements))
	}

	fmt.Println("Schema applied successfully")
}

// splitStatements 按分号切分，跳过空白与纯注释段
func splitStatements(content string) []string {
	var out []string
	for _, stmt := range strings.Split(content, ";") {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		allComments := true
		for _, line := range strings.Split(trimmed, "\n") {
			line = strings.TrimSpace(line)
			if line != "" && !strings.HasPrefix(line, "--") {
				allComments = false
				break
			}
		}
		if allComments {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as an unquoted schema,
// table or column name.
func ValidIdentifier(name string) bool {
	return identPattern.MatchString(name)
}

// QuoteIdent validates name and returns it double-quoted for interpolation
// into SQL text.
func QuoteIdent(name string) (string, error) {
	if !ValidIdentifier(name) {
		return "", fmt.Errorf("invalid identifier: %q", name)
	}
	return `"` + name + `"`, nil
}

// searchPath sets the schema used for unqualified table names on a new
// connection.
func searchPath(schema string) func(context.Context, *pgx.Conn) error {
	return func(ctx context.Context, conn *pgx.Conn) error {
		quoted, err := QuoteIdent(schema)
		if err != nil {
			return err
		}
		_, err = conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", quoted))
		return err
	}
}

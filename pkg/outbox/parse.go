package outbox

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var identPart = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseIdentifier turns "table" or "schema.table" into a pgx.Identifier.
func ParseIdentifier(s string) (pgx.Identifier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalidConfig("table name is empty")
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, invalidConfig("table name %q has too many parts", s)
	}
	for _, p := range parts {
		if !identPart.MatchString(p) {
			return nil, invalidConfig("table name %q contains invalid part %q", s, p)
		}
	}
	return pgx.Identifier(parts), nil
}

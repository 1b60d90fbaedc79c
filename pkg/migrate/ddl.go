package migrate

import (
	"regexp"
	"strings"

	"github.com/ajitpratap0/mongobridge/pkg/config"
	"github.com/ajitpratap0/mongobridge/pkg/connector/mysql"
	"github.com/ajitpratap0/mongobridge/pkg/errors"
	"github.com/ajitpratap0/mongobridge/pkg/models"
	"github.com/ajitpratap0/mongobridge/pkg/schema"
)

// sqlTypePattern accepts column types such as TEXT, VARCHAR(255),
// DECIMAL(10,2) and INT UNSIGNED.
var sqlTypePattern = regexp.MustCompile(`^[A-Za-z]+(\s*\(\s*\d+\s*(,\s*\d+\s*)?\))?(\s+UNSIGNED)?$`)

// DeclaredSchema builds the table schema from configured columns. The
// identifier column always comes first as the primary key, whatever type
// the configuration gives it.
func DeclaredSchema(table, idField string, idLength int, columns []config.ColumnConfig) (*models.Schema, error) {
	fields := make([]models.Field, 0, len(columns)+1)
	fields = append(fields, schema.IDField(idField, idLength))
	for _, c := range columns {
		if c.Name == idField {
			continue
		}
		if !sqlTypePattern.MatchString(strings.TrimSpace(c.Type)) {
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid column type %q for %q", c.Type, c.Name)
		}
		fields = append(fields, models.Field{
			Name:    c.Name,
			SQLType: strings.TrimSpace(c.Type),
		})
	}
	return &models.Schema{Name: table, Fields: fields}, nil
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS for s
func CreateTableSQL(s *models.Schema) (string, error) {
	table, err := mysql.QuoteIdent(s.Name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(table)
	b.WriteString(" (")

	var keys []string
	for i, f := range s.Fields {
		col, err := mysql.QuoteIdent(f.Name)
		if err != nil {
			return "", err
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" ")
		b.WriteString(f.SQLType)
		if f.PrimaryKey || f.Required {
			b.WriteString(" NOT NULL")
		}
		if f.PrimaryKey {
			keys = append(keys, col)
		}
	}
	if len(keys) > 0 {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String(), nil
}

// InsertSQL renders a parameterized INSERT for the given columns
func InsertSQL(table string, columns []string) (string, error) {
	quotedTable, err := mysql.QuoteIdent(table)
	if err != nil {
		return "", err
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		q, err := mysql.QuoteIdent(c)
		if err != nil {
			return "", err
		}
		cols[i] = q
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	return "INSERT INTO " + quotedTable + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")", nil
}

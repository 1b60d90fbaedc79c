package mysql

import (
	"strings"
	"unicode/utf8"

	"github.com/ajitpratap0/mongobridge/pkg/errors"
)

// maxIdentLength is the server limit, in characters, for database, table
// and column names
const maxIdentLength = 64

// ValidIdent rejects names the server refuses even when quoted: empty
// names, names containing NUL, names longer than 64 characters and names
// ending in a space.
func ValidIdent(name string) error {
	switch {
	case name == "":
		return errors.New(errors.ErrorTypeValidation, "invalid identifier: empty name")
	case !utf8.ValidString(name):
		return errors.Newf(errors.ErrorTypeValidation, "invalid identifier %q: not UTF-8", name)
	case strings.IndexByte(name, 0) >= 0:
		return errors.Newf(errors.ErrorTypeValidation, "invalid identifier %q: contains NUL", name)
	case utf8.RuneCountInString(name) > maxIdentLength:
		return errors.Newf(errors.ErrorTypeValidation, "invalid identifier %q: longer than %d characters", name, maxIdentLength)
	case strings.HasSuffix(name, " "):
		return errors.Newf(errors.ErrorTypeValidation, "invalid identifier %q: ends with a space", name)
	}
	return nil
}

// QuoteIdent validates name and wraps it in backticks, doubling any
// backtick inside it.
func QuoteIdent(name string) (string, error) {
	if err := ValidIdent(name); err != nil {
		return "", err
	}
	return "`" + strings.ReplaceAll(name, "`", "``") + "`", nil
}

package cleaning

import (
	"errors"
	"fmt"
	"strings"
)

var ErrSchema = errors.New("schema error")

// SchemaError reports required columns absent from the raw table.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

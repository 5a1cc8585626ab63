package record

import (
	"fmt"
	"strconv"
	"strings"
)

// Reason says why a row was rejected.
type Reason int

const (
	ReasonMissing Reason = iota
	ReasonInvalid
)

// ParseError rejects a row and names the offending column.
type ParseError struct {
	Field  string
	Reason Reason
	Value  string
}

func (e *ParseError) Error() string {
	if e.Reason == ReasonMissing {
		return fmt.Sprintf("missing %s field", e.Field)
	}
	return fmt.Sprintf("invalid %s value %q", e.Field, e.Value)
}

// Outcome is the single result of parsing one RawLine: either Record is valid
// (Err == nil) or the line was rejected.
type Outcome struct {
	Line   RawLine
	Record Flight
	Err    *ParseError
}

// Parsed reports whether the line produced a record.
func (o Outcome) Parsed() bool { return o.Err == nil }

// Reason returns the rejection text, or "" for a parsed line.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Parse converts already split columns into a Flight following Schema.
// Columns past the schema are ignored.
func Parse(fields []string) (Flight, *ParseError) {
	var f Flight

	for i := range Schema {
		col := &Schema[i]
		if i >= len(fields) {
			return Flight{}, &ParseError{Field: col.Name, Reason: ReasonMissing}
		}
		raw := strings.TrimSpace(fields[i])

		if col.Kind == Text {
			col.setText(&f, raw)
			continue
		}

		v, ok := parseInt(raw, col)
		if !ok {
			if col.Policy == Strict {
				return Flight{}, &ParseError{Field: col.Name, Reason: ReasonInvalid, Value: fields[i]}
			}
			v = 0
		}
		col.setInt(&f, v)
	}

	return f, nil
}

// ParseLine splits line on delimiter and parses it.
func ParseLine(line RawLine, delimiter string) Outcome {
	rec, perr := Parse(strings.Split(line.Text, delimiter))
	if perr != nil {
		return Outcome{Line: line, Err: perr}
	}
	return Outcome{Line: line, Record: rec}
}

func parseInt(raw string, col *Field) (int64, bool) {
	var v int64
	switch col.Kind {
	case Int16:
		n, err := strconv.ParseInt(raw, 10, col.Kind.bits())
		if err != nil {
			return 0, false
		}
		v = n
	default:
		n, err := strconv.ParseUint(raw, 10, col.Kind.bits())
		if err != nil {
			return 0, false
		}
		v = int64(n)
	}

	if col.Max != 0 && (v < col.Min || v > col.Max) {
		return 0, false
	}
	return v, true
}

package masters

import (
	"strings"
	"time"
)

// Row is one data row keyed by header column name. Every header column is
// present as a key, possibly with an empty value.
type Row map[string]string

// Lookup resolves a field by its primary column name, then its alias. The
// value is empty when neither column has text; present reports whether the
// file carries either column at all.
func (r Row) Lookup(primary, alias string) (value string, present bool) {
	for _, name := range []string{primary, alias} {
		if name == "" {
			continue
		}
		v, ok := r[name]
		if !ok {
			continue
		}
		present = true
		if v = strings.TrimSpace(v); v != "" {
			return v, true
		}
	}
	return "", present
}

// column binds one logical field to its source columns. apply runs only when
// the file carries the column; a column missing from the header leaves the
// field nil.
type column[R any] struct {
	primary  string
	alias    string
	required bool
	apply    func(rec *R, value string)
}

type table[R any] []column[R]

// fill applies every column to rec and returns the primary names of
// required columns that resolved empty.
func (t table[R]) fill(rec *R, row Row) []string {
	var missing []string
	for _, col := range t {
		value, present := row.Lookup(col.primary, col.alias)
		if col.required && value == "" {
			missing = append(missing, col.primary)
		}
		if !present {
			continue
		}
		col.apply(rec, value)
	}
	return missing
}

func (c column[R]) must() column[R] {
	c.required = true
	return c
}

// text stores the value as is, keeping empty strings.
func text[R any](primary, alias string, field func(*R) **string) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		v := value
		*field(rec) = &v
	}}
}

func plain[R any](primary, alias string, field func(*R) *string) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		*field(rec) = value
	}}
}

// textOr stores the value, or def when the cell is empty.
func textOr[R any](primary, alias, def string, field func(*R) **string) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		if value == "" {
			value = def
		}
		v := value
		*field(rec) = &v
	}}
}

// integer parses the cell, falling back to def when it is empty, not a
// number, or outside the allowed set.
func integer[R any](primary, alias string, def int, allowed func(int) bool, field func(*R) **int) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		v, ok := parseInt(value)
		if !ok || !allowed(v) {
			v = def
		}
		*field(rec) = &v
	}}
}

// optInteger is integer without a default: unusable cells leave the field nil.
func optInteger[R any](primary, alias string, allowed func(int) bool, field func(*R) **int) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		v, ok := parseInt(value)
		if !ok || !allowed(v) {
			return
		}
		*field(rec) = &v
	}}
}

func flag[R any](primary, alias string, field func(*R) **bool) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		v := parseFlag(value)
		*field(rec) = &v
	}}
}

func date[R any](primary, alias string, field func(*R) *time.Time) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		if t, ok := parseDate(value); ok {
			*field(rec) = t
		}
	}}
}

func optDate[R any](primary, alias string, field func(*R) **time.Time) column[R] {
	return column[R]{primary: primary, alias: alias, apply: func(rec *R, value string) {
		if t, ok := parseDate(value); ok {
			*field(rec) = &t
		}
	}}
}

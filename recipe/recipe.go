// Package recipe parses the fixed-column, header-driven "recipe" text
// format used to describe beam and detector configurations: a
// "#!BeginTable <name>" marker, a header line naming each column, data
// rows with columns in whatever order the header declares, and a
// "#!EndTable" terminator. Column order is read from the header every
// time, not hardcoded, so an operator can add or reorder columns in the
// text file without a code change.
//
// This package sits outside the core: it turns recipe text into plain Go
// row structs (a BeamRecipeRow, a BeamGroupRow) defined here; the core's
// beam/detect packages do not reference these types, and the core itself
// never touches a recipe file.
//
// Grounded on geotool/libsrc/libgbeam/beamRecipe.cpp's readFile/
// getVariablePositions/parseLine: the header-names-to-column-index
// lookup, the "|"/whitespace token splitting, and the BeginTable/
// EndTable bracketing are all carried over; struct-tag-driven field
// binding (via github.com/yuin/stagparser, following the tag-parsing
// pattern sixy6e/go-gsf uses for its own struct tags) replaces the
// original's hand-written 14-slot switch statement in parseLine/
// write_recipe.
package recipe

import (
	"bufio"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"

	"github.com/geotool-core/geocore/gerrors"
)

// BeamRecipeRow is one row of a "beam-recipe" table: a named beam
// configuration (filter band, rotation, phase, expected slowness and
// azimuth, and the station group it sums), grounded on BeamRecipe in
// Beam.h (read only via its field usage in beamRecipe.cpp, the header
// itself not present in the retrieved pack).
type BeamRecipeRow struct {
	Name     string  `recipe:"col=name"`
	BeamType string  `recipe:"col=type"`
	Rot      string  `recipe:"col=rot"`
	Std      int     `recipe:"col=std"`
	SNR      float64 `recipe:"col=snr"`
	Azimuth  float64 `recipe:"col=azi"`
	Slow     float64 `recipe:"col=slow"`
	Phase    string  `recipe:"col=phase"`
	FLo      float64 `recipe:"col=flo"`
	FHi      float64 `recipe:"col=fhi"`
	FOrder   int     `recipe:"col=ford"`
	ZeroPh   int     `recipe:"col=zp"`
	FType    string  `recipe:"col=ftype"`
	Group    string  `recipe:"col=group"`
}

// BeamGroupRow is one station's membership and weight within a named
// beam group, grounded on BeamSta.
type BeamGroupRow struct {
	Sta  string  `recipe:"col=sta"`
	Chan string  `recipe:"col=chan"`
	Wgt  float64 `recipe:"col=wgt"`
}

// GroupNameRow names a group defined elsewhere in the same recipe file,
// grounded on the "beam-group" table readGroupFile reads before looking
// up each named group's own station table.
type GroupNameRow struct {
	Group string `recipe:"col=group"`
}

// ParseRecipes reads the "beam-recipe" table from r.
func ParseRecipes(r io.Reader) ([]BeamRecipeRow, error) {
	var rows []BeamRecipeRow
	if err := ParseTable(r, "beam-recipe", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseGroupNames reads the "beam-group" table of group names from r.
func ParseGroupNames(r io.Reader) ([]GroupNameRow, error) {
	var rows []GroupNameRow
	if err := ParseTable(r, "beam-group", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseGroup reads one named group's station table from r, grounded on
// readGroup's findParTable(fp, group.c_str()) lookup by group name
// rather than a fixed table name.
func ParseGroup(r io.Reader, group string) ([]BeamGroupRow, error) {
	var rows []BeamGroupRow
	if err := ParseTable(r, group, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseTable scans r for "#!BeginTable <name>", reads the header line
// that follows to learn the column order, then fills dest (a pointer to
// a slice of a tagged row struct) with one element per data row up to
// "#!EndTable". Column names are matched case-insensitively against
// each field's `recipe:"col=..."` tag; a header column with no matching
// field is ignored, and a field whose column is absent from the header
// is left at its zero value — except the first tagged field, whose
// column must be present in the header or the table is rejected as
// malformed.
func ParseTable(r io.Reader, tableName string, dest interface{}) error {
	destVal := reflect.ValueOf(dest)
	if destVal.Kind() != reflect.Ptr || destVal.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("recipe.ParseTable: dest must be a pointer to a slice: %w", gerrors.ErrInvalidArgs)
	}
	sliceVal := destVal.Elem()
	rowType := sliceVal.Type().Elem()

	colIndex, err := fieldColumns(rowType)
	if err != nil {
		return fmt.Errorf("recipe.ParseTable: %w", err)
	}

	scanner := bufio.NewScanner(r)
	if !seekTable(scanner, tableName) {
		return fmt.Errorf("recipe.ParseTable: table %q not found: %w", tableName, gerrors.ErrInvalidArgs)
	}

	header, ok := nextNonBlank(scanner)
	if !ok {
		return fmt.Errorf("recipe.ParseTable: table %q has no header: %w", tableName, gerrors.ErrInvalidArgs)
	}
	fieldForCol := columnFieldMap(tokenize(header), colIndex)
	if missing, ok := firstMissingColumn(rowType, colIndex, fieldForCol); ok {
		return fmt.Errorf("recipe.ParseTable: table %q: required column %q not found in header: %w",
			tableName, missing, gerrors.ErrInvalidArgs)
	}

	for {
		line, ok := nextNonBlank(scanner)
		if !ok {
			return fmt.Errorf("recipe.ParseTable: table %q missing #!EndTable: %w", tableName, gerrors.ErrInvalidArgs)
		}
		if strings.Contains(line, "EndTable") {
			break
		}
		row := reflect.New(rowType).Elem()
		for i, tok := range tokenize(line) {
			fi, ok := fieldForCol[i]
			if !ok {
				continue
			}
			if err := setField(row.Field(fi), tok); err != nil {
				return fmt.Errorf("recipe.ParseTable: table %q: %w", tableName, err)
			}
		}
		sliceVal.Set(reflect.Append(sliceVal, row))
	}
	return nil
}

// fieldColumns parses every field's `recipe:"col=..."` tag via
// stagparser, returning the declared column name (lowercased) for each
// struct field index, following the same ParseStruct/Definition.
// Attribute lookup pattern sixy6e/go-gsf uses for its own tiledb tags.
func fieldColumns(rowType reflect.Type) (map[int]string, error) {
	zero := reflect.New(rowType).Interface()
	defs, err := stgpsr.ParseStruct(zero, "recipe")
	if err != nil {
		return nil, fmt.Errorf("parsing recipe struct tags: %w", err)
	}

	colIndex := make(map[int]string)
	for i := 0; i < rowType.NumField(); i++ {
		name := rowType.Field(i).Name
		fieldDefs := defs[name]
		for _, d := range fieldDefs {
			if d.Name() != "col" {
				continue
			}
			if col, ok := d.Attribute("col"); ok {
				colIndex[i] = strings.ToLower(col)
			}
		}
	}
	return colIndex, nil
}

// firstMissingColumn reports the column name of the first struct field
// (in declaration order) that declares a `recipe:"col=..."` tag but has
// no match in the file's header, along with whether one was found.
//
// Grounded on getVariablePositions's caller, which treats the first
// variable's position (pos[0] == -1) as the only column whose absence
// is fatal — a beam-recipe row with no "name" column is malformed, but
// one missing an optional tuning column like "zp" just parses that
// field as its zero value. This generalizes "the first variable" to
// "the first tagged field of whichever row struct is being parsed",
// mirroring sixy6e-go-gsf's own lo.Contains usage for membership checks.
func firstMissingColumn(rowType reflect.Type, colIndex map[int]string, fieldForCol map[int]int) (string, bool) {
	matchedFields := lo.Values(fieldForCol)
	for i := 0; i < rowType.NumField(); i++ {
		col, tagged := colIndex[i]
		if !tagged {
			continue
		}
		return col, !lo.Contains(matchedFields, i)
	}
	return "", false
}

// columnFieldMap inverts fieldColumns against the file's actual header
// token order, so header[i] == "azi" maps to whichever struct field
// declared col=azi, regardless of where that field sits in the struct.
func columnFieldMap(header []string, colIndex map[int]string) map[int]int {
	nameToField := make(map[string]int, len(colIndex))
	for fieldIdx, col := range colIndex {
		nameToField[col] = fieldIdx
	}
	out := make(map[int]int)
	for i, h := range header {
		if fi, ok := nameToField[strings.ToLower(h)]; ok {
			out[i] = fi
		}
	}
	return out
}

func setField(f reflect.Value, tok string) error {
	switch f.Kind() {
	case reflect.String:
		f.SetString(tok)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %q as int: %w", tok, err)
		}
		f.SetInt(n)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("parsing %q as float: %w", tok, err)
		}
		f.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(tok)
		if err != nil {
			return fmt.Errorf("parsing %q as bool: %w", tok, err)
		}
		f.SetBool(v)
	}
	return nil
}

// seekTable scans forward for a line containing "#!BeginTable <name>"
// (case-insensitive on the name), leaving the scanner positioned just
// after it.
func seekTable(scanner *bufio.Scanner, name string) bool {
	want := "begintable " + strings.ToLower(name)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(scanner.Text()), "#!"))
		if strings.HasPrefix(line, want) {
			return true
		}
	}
	return false
}

// nextNonBlank returns the next line that is neither empty nor a
// "#" comment (but not a "#!" directive line, which blankLine in the
// original also treats as data-table noise to skip over only when it
// isn't the Begin/EndTable markers callers already handle explicitly).
func nextNonBlank(scanner *bufio.Scanner) (string, bool) {
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") && !strings.HasPrefix(trimmed, "#!") {
			continue
		}
		return trimmed, true
	}
	return "", false
}

// tokenize splits a line on the same delimiter set as the original's
// strtok_r(line, "| \t", &last): pipes, spaces, and tabs.
// strings.FieldsFunc already drops runs of delimiters on its own, so no
// separate empty-token filter is needed here.
func tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == '|' || r == ' ' || r == '\t'
	})
}

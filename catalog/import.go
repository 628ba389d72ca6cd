package catalog

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/charmap"

	"github.com/giygas/cleaning-validation-api/catalog/entities"
)

// ErrBadImport is returned when an import file cannot be parsed.
var ErrBadImport = errors.New("invalid import file")

const maxImportRows = 10000

var machineColumns = map[string]string{
	"name":          "name",
	"machine":       "name",
	"machinenumber": "machineNumber",
	"number":        "machineNumber",
	"stage":         "stage",
	"area":          "area",
	"areacm2":       "area",
	"line":          "line",
}

// ImportMachinesCSV parses a machine list exported from a spreadsheet. The
// file may be UTF-8 or Windows-1252 and use ',' or ';' as separator; columns
// are matched by header name.
func ImportMachinesCSV(r io.Reader) ([]entities.Machine, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	var reader io.Reader
	if utf8.Valid(raw) {
		reader = bytes.NewReader(raw)
	} else {
		// Spreadsheet exports on Windows default to cp1252
		reader = charmap.Windows1252.NewDecoder().Reader(bytes.NewReader(raw))
	}

	firstLine, _, _ := bytes.Cut(raw, []byte("\n"))
	sep := ','
	if bytes.Count(firstLine, []byte(";")) > bytes.Count(firstLine, []byte(",")) {
		sep = ';'
	}

	cr := csv.NewReader(reader)
	cr.Comma = sep
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadImport, err)
	}

	fold := cases.Fold()
	index := make(map[string]int)
	for i, h := range header {
		name := strings.NewReplacer(" ", "", "_", "", "(", "", ")", "", "²", "2").Replace(fold.String(strings.TrimSpace(h)))
		if field, ok := machineColumns[name]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	if _, ok := index["name"]; !ok {
		return nil, fmt.Errorf("%w: missing name column", ErrBadImport)
	}

	var machines []entities.Machine
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadImport, line, err)
		}
		if len(machines) >= maxImportRows {
			return nil, fmt.Errorf("%w: more than %d rows", ErrBadImport, maxImportRows)
		}

		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		if get("name") == "" && get("machineNumber") == "" {
			continue
		}

		m := entities.Machine{
			Name:          get("name"),
			MachineNumber: get("machineNumber"),
			Stage:         get("stage"),
			Line:          get("line"),
		}
		if a := get("area"); a != "" {
			if sep == ';' {
				a = strings.ReplaceAll(a, ",", ".")
			}
			area, err := strconv.ParseFloat(a, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid area %q", ErrBadImport, line, a)
			}
			m.Area = area
		}
		machines = append(machines, m)
	}

	return machines, nil
}

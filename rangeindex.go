package shardarc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Mapping assigns a code range to an output shard.
type Mapping struct {
	File  string // shard name, unique across the table
	Start string // inclusive lower bound
	Stop  string // inclusive upper bound

	bounded bool
}

// Bounded reports whether the mapping carries a start/stop range.
// Mappings of single-file services are unbounded.
func (m Mapping) Bounded() bool { return m.bounded }

// RangeIndex resolves codes to shards, per service. It is immutable
// once created and safe for concurrent use.
type RangeIndex struct {
	services map[string][]Mapping
	files    map[string]string // file -> service
}

// LoadRangeIndex reads a range table from a file. Files ending in
// .yaml or .yml are parsed as YAML, everything else as JSON (with
// comments and trailing commas permitted).
func LoadRangeIndex(path string) (*RangeIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseRangeIndexYAML(data)
	default:
		return ParseRangeIndex(data)
	}
}

// ParseRangeIndex parses a JSON range table.
func ParseRangeIndex(data []byte) (*RangeIndex, error) {
	var table map[string][]map[string]string
	if err := json.Unmarshal(jsonc.ToJSON(data), &table); err != nil {
		return nil, fmt.Errorf("shardarc: parse range table: %w", err)
	}
	return NewRangeIndex(table)
}

// ParseRangeIndexYAML parses a YAML range table. The schema is the
// same as for JSON.
func ParseRangeIndexYAML(data []byte) (*RangeIndex, error) {
	var table map[string][]map[string]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("shardarc: parse range table: %w", err)
	}
	return NewRangeIndex(table)
}

// NewRangeIndex builds an index from a decoded table, mapping service
// names to their entries. Entries of multi-mapping services are sorted
// by start. A *ConfigError listing all problems is returned if the
// table is invalid.
func NewRangeIndex(table map[string][]map[string]string) (*RangeIndex, error) {
	x := &RangeIndex{
		services: make(map[string][]Mapping, len(table)),
		files:    make(map[string]string),
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	cerr := new(ConfigError)
	for _, name := range names {
		x.services[name] = x.check(cerr, name, table[name])
	}
	if len(cerr.Problems) != 0 {
		return nil, cerr
	}
	return x, nil
}

// check validates the entries of a single service, recording problems
// in cerr, and returns the parsed, sorted mappings.
func (x *RangeIndex) check(cerr *ConfigError, service string, entries []map[string]string) []Mapping {
	if len(entries) == 0 {
		cerr.add("no mappings for service '%s'", service)
		return nil
	}

	mappings := make([]Mapping, 0, len(entries))
	complete := true
	for i, ent := range entries {
		num := i + 1

		file, ok := ent["file"]
		if !ok {
			cerr.add("no file specified for service '%s', mapping %d", service, num)
		} else if other, dup := x.files[file]; dup {
			cerr.add("duplicate output file '%s' in services '%s' and '%s'", file, other, service)
		} else {
			x.files[file] = service
		}

		if len(entries) == 1 {
			if ok && len(ent) != 1 {
				cerr.add("additional data for service '%s', mapping %d", service, num)
			}
			mappings = append(mappings, Mapping{File: file})
			continue
		}

		start, hasStart := ent["start"]
		stop, hasStop := ent["stop"]
		switch {
		case !hasStart || !hasStop:
			cerr.add("start or stop not given for service '%s', mapping %d", service, num)
			complete = false
		case len(ent) != 3:
			cerr.add("additional data for service '%s', mapping %d", service, num)
			complete = false
		case !ValidCode(start) || !ValidCode(stop):
			cerr.add("invalid code bounds for service '%s', mapping %d", service, num)
			complete = false
		case CompareCodes(start, stop) > 0:
			cerr.add("start is bigger than stop for service '%s', mapping %d", service, num)
			complete = false
		}
		mappings = append(mappings, Mapping{File: file, Start: start, Stop: stop, bounded: true})
	}

	if len(mappings) < 2 || !complete {
		return mappings
	}

	sort.SliceStable(mappings, func(i, j int) bool {
		return CompareCodes(mappings[i].Start, mappings[j].Start) < 0
	})
	for i := 1; i < len(mappings); i++ {
		if prev := mappings[i-1]; CompareCodes(prev.Stop, mappings[i].Start) >= 0 {
			cerr.add("overlap detected for service '%s', code '%s'", service, prev.Stop)
		}
	}
	return mappings
}

// Services returns the sorted service names.
func (x *RangeIndex) Services() []string {
	names := make([]string, 0, len(x.services))
	for name := range x.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Mappings returns a copy of the sorted mappings of a service.
func (x *RangeIndex) Mappings(service string) []Mapping {
	return append([]Mapping(nil), x.services[service]...)
}

// Resolve returns the mapping owning code for a service. It returns an
// error wrapping ErrNotFound if the service is unknown or no range
// contains the code.
func (x *RangeIndex) Resolve(service, code string) (Mapping, error) {
	mappings, ok := x.services[service]
	if !ok {
		return Mapping{}, fmt.Errorf("%w: unknown service '%s'", ErrNotFound, service)
	}
	if len(mappings) == 1 && !mappings[0].bounded {
		return mappings[0], nil
	}

	// ranges are sorted and disjoint, so stops are sorted too
	pos := sort.Search(len(mappings), func(i int) bool {
		return CompareCodes(mappings[i].Stop, code) >= 0
	})
	if pos < len(mappings) && CompareCodes(mappings[pos].Start, code) <= 0 {
		return mappings[pos], nil
	}
	return Mapping{}, fmt.Errorf("%w: no mapping for service '%s', code '%s'", ErrNotFound, service, code)
}

// StillInRange reports whether code does not exceed the upper bound
// of m. Unbounded mappings accept every code.
func (x *RangeIndex) StillInRange(m Mapping, code string) bool {
	if !m.bounded {
		return true
	}
	return CompareCodes(code, m.Stop) <= 0
}

// ServiceFor returns the service owning a shard file. It returns an
// error wrapping ErrNotFound if no mapping names the file.
func (x *RangeIndex) ServiceFor(file string) (string, error) {
	if service, ok := x.files[file]; ok {
		return service, nil
	}
	return "", fmt.Errorf("%w: file '%s' not in range table", ErrNotFound, file)
}

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ============================================================================
// Mapping persistence
// ============================================================================
// Mappings persist as an ordered CSV record set:
//
//	function_id,input_type,device_id,input_kind,input_index,reverse_flag,extra_parameters
//
// extra_parameters is a semicolon-separated k=v list carrying the
// type-specific fields (deadzone, states, cyclic, jump_to, split,
// paired_with, mode_toggle, direction). Invalid rows are skipped with a
// warning at load time; valid rows still apply.

var mappingCSVHeader = []string{
	"function_id", "input_type", "device_id", "input_kind", "input_index", "reverse_flag", "extra_parameters",
}

// MappingRecord is the persisted form of one mapping. It doubles as the JSON
// shape used by the control surface for set_mapping/replace_mappings.
type MappingRecord struct {
	FunctionID FunctionID        `json:"function_id"`
	InputType  InputType         `json:"input_type"`
	DeviceID   int               `json:"device_id"`
	InputKind  InputKind         `json:"input_kind"`
	InputIndex int               `json:"input_index"`
	Reverse    bool              `json:"reverse,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// encodeExtras renders the k=v list deterministically (sorted keys).
func encodeExtras(extra map[string]string) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+extra[k])
	}
	return strings.Join(parts, ";")
}

func decodeExtras(s string) (map[string]string, error) {
	extra := make(map[string]string)
	if s == "" {
		return extra, nil
	}
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("malformed extra parameter %q", part)
		}
		extra[k] = v
	}
	return extra, nil
}

// encodeSelectorRef renders a selector reference for extra_parameters
// (used for mode_toggle): "device:kind:index" or "device:hat:index:dir".
func encodeSelectorRef(sel Selector) string {
	if sel.Kind == KindHat {
		return fmt.Sprintf("%d:%s:%d:%s", sel.Device, sel.Kind, sel.Index, sel.Direction)
	}
	return fmt.Sprintf("%d:%s:%d", sel.Device, sel.Kind, sel.Index)
}

func decodeSelectorRef(s string) (Selector, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return Selector{}, fmt.Errorf("malformed selector reference %q", s)
	}
	dev, err := strconv.Atoi(parts[0])
	if err != nil {
		return Selector{}, fmt.Errorf("selector device in %q: %w", s, err)
	}
	idx, err := strconv.Atoi(parts[2])
	if err != nil {
		return Selector{}, fmt.Errorf("selector index in %q: %w", s, err)
	}
	sel := Selector{Device: dev, Kind: InputKind(parts[1]), Index: idx}
	if len(parts) == 4 {
		dir, err := ParseHatDirection(parts[3])
		if err != nil {
			return Selector{}, err
		}
		sel.Direction = dir
	}
	return sel, nil
}

// RecordFromMapping converts a live mapping into its persisted form.
func RecordFromMapping(m Mapping) MappingRecord {
	rec := MappingRecord{
		FunctionID: m.Function,
		InputType:  m.Type,
		DeviceID:   m.Selector.Device,
		InputKind:  m.Selector.Kind,
		InputIndex: m.Selector.Index,
		Extra:      make(map[string]string),
	}
	if m.Selector.Kind == KindHat {
		rec.Extra["direction"] = m.Selector.Direction.String()
	}
	switch cfg := m.Config.(type) {
	case LeverConfig:
		rec.Reverse = cfg.Reverse
		if cfg.Deadzone > 0 {
			rec.Extra["deadzone"] = strconv.FormatFloat(cfg.Deadzone, 'f', -1, 64)
		}
		if cfg.Split != nil {
			rec.Extra["split"] = strconv.FormatFloat(*cfg.Split, 'f', -1, 64)
		}
		if cfg.PairedWith != 0 {
			rec.Extra["paired_with"] = strconv.Itoa(int(cfg.PairedWith))
		}
		if cfg.ModeToggle != nil {
			rec.Extra["mode_toggle"] = encodeSelectorRef(*cfg.ModeToggle)
		}
	case MultiwayConfig:
		rec.Extra["states"] = strconv.Itoa(cfg.States)
		if cfg.Cyclic {
			rec.Extra["cyclic"] = "true"
		} else {
			rec.Extra["jump_to"] = strconv.Itoa(cfg.JumpTo)
		}
	}
	return rec
}

// MappingFromRecord converts a persisted record back into a live mapping.
// It validates the type-specific fields but not device capability bounds;
// those are checked against the known devices when the record is applied.
func MappingFromRecord(rec MappingRecord) (Mapping, error) {
	if _, ok := LookupFunction(rec.FunctionID); !ok {
		return Mapping{}, fmt.Errorf("unknown function id %d", rec.FunctionID)
	}

	sel := Selector{Device: rec.DeviceID, Kind: rec.InputKind, Index: rec.InputIndex}
	if rec.InputKind == KindHat {
		dir, err := ParseHatDirection(rec.Extra["direction"])
		if err != nil {
			return Mapping{}, fmt.Errorf("function %d: %w", rec.FunctionID, err)
		}
		sel.Direction = dir
	}

	var cfg TypeConfig
	switch rec.InputType {
	case TypeMomentary:
		cfg = MomentaryConfig{}
	case TypeToggle:
		cfg = ToggleConfig{}
	case TypeLever:
		lc := LeverConfig{Reverse: rec.Reverse}
		if s, ok := rec.Extra["deadzone"]; ok {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Mapping{}, fmt.Errorf("function %d: deadzone: %w", rec.FunctionID, err)
			}
			lc.Deadzone = v
		}
		if s, ok := rec.Extra["split"]; ok {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Mapping{}, fmt.Errorf("function %d: split: %w", rec.FunctionID, err)
			}
			lc.Split = &v
		}
		if s, ok := rec.Extra["paired_with"]; ok {
			v, err := strconv.Atoi(s)
			if err != nil {
				return Mapping{}, fmt.Errorf("function %d: paired_with: %w", rec.FunctionID, err)
			}
			lc.PairedWith = FunctionID(v)
		}
		if s, ok := rec.Extra["mode_toggle"]; ok {
			mt, err := decodeSelectorRef(s)
			if err != nil {
				return Mapping{}, fmt.Errorf("function %d: mode_toggle: %w", rec.FunctionID, err)
			}
			lc.ModeToggle = &mt
		}
		cfg = lc
	case TypeMultiway:
		mc := MultiwayConfig{}
		if s, ok := rec.Extra["states"]; ok {
			v, err := strconv.Atoi(s)
			if err != nil {
				return Mapping{}, fmt.Errorf("function %d: states: %w", rec.FunctionID, err)
			}
			mc.States = v
		}
		if rec.Extra["cyclic"] == "true" {
			mc.Cyclic = true
		} else if s, ok := rec.Extra["jump_to"]; ok {
			v, err := strconv.Atoi(s)
			if err != nil {
				return Mapping{}, fmt.Errorf("function %d: jump_to: %w", rec.FunctionID, err)
			}
			mc.JumpTo = v
		}
		cfg = mc
	default:
		return Mapping{}, fmt.Errorf("function %d: unknown input type %q", rec.FunctionID, rec.InputType)
	}

	m := Mapping{Function: rec.FunctionID, Selector: sel, Type: rec.InputType, Config: cfg}
	if err := validateConfig(m.Type, m.Config); err != nil {
		return Mapping{}, fmt.Errorf("function %d: %w", rec.FunctionID, err)
	}
	return m, nil
}

// ReadMappingRecords parses the CSV record set. Rows that fail to parse are
// skipped and reported as warnings; well-formed rows are still returned.
func ReadMappingRecords(r io.Reader) ([]MappingRecord, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(mappingCSVHeader)
	cr.TrimLeadingSpace = true

	var records []MappingRecord
	var warnings []string
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row: warn and keep going so valid rows still apply.
			warnings = append(warnings, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		if row == 1 && fields[0] == mappingCSVHeader[0] {
			continue // header
		}
		rec, err := parseRecordRow(fields)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("row %d: %v", row, err))
			continue
		}
		records = append(records, rec)
	}
	return records, warnings, nil
}

func parseRecordRow(row []string) (MappingRecord, error) {
	fid, err := strconv.Atoi(row[0])
	if err != nil {
		return MappingRecord{}, fmt.Errorf("function_id %q: %w", row[0], err)
	}
	dev, err := strconv.Atoi(row[2])
	if err != nil {
		return MappingRecord{}, fmt.Errorf("device_id %q: %w", row[2], err)
	}
	idx, err := strconv.Atoi(row[4])
	if err != nil {
		return MappingRecord{}, fmt.Errorf("input_index %q: %w", row[4], err)
	}
	rev, err := strconv.ParseBool(row[5])
	if err != nil {
		return MappingRecord{}, fmt.Errorf("reverse_flag %q: %w", row[5], err)
	}
	extra, err := decodeExtras(row[6])
	if err != nil {
		return MappingRecord{}, err
	}
	return MappingRecord{
		FunctionID: FunctionID(fid),
		InputType:  InputType(row[1]),
		DeviceID:   dev,
		InputKind:  InputKind(row[3]),
		InputIndex: idx,
		Reverse:    rev,
		Extra:      extra,
	}, nil
}

// WriteMappingRecords writes the record set with its header row.
func WriteMappingRecords(w io.Writer, records []MappingRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(mappingCSVHeader); err != nil {
		return fmt.Errorf("write mapping csv header: %w", err)
	}
	for _, rec := range records {
		row := []string{
			strconv.Itoa(int(rec.FunctionID)),
			string(rec.InputType),
			strconv.Itoa(rec.DeviceID),
			string(rec.InputKind),
			strconv.Itoa(rec.InputIndex),
			strconv.FormatBool(rec.Reverse),
			encodeExtras(rec.Extra),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write mapping csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MappingStore reads and writes the mappings file.
type MappingStore struct {
	Path string
}

// Load parses the mappings file. A missing file is not an error: it yields an
// empty record set, matching first-run behavior.
func (s *MappingStore) Load() ([]MappingRecord, []string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("open mappings file: %w", err)
	}
	defer f.Close()
	return ReadMappingRecords(f)
}

// Save atomically rewrites the mappings file (write temp, rename).
func (s *MappingStore) Save(records []MappingRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create mappings directory: %w", err)
	}
	tmp := s.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create mappings temp file: %w", err)
	}
	if err := WriteMappingRecords(f, records); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close mappings temp file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace mappings file: %w", err)
	}
	return nil
}

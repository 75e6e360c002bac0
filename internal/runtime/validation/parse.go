package validation

import (
	"encoding/binary"
	"strconv"
	"unicode/utf8"

	"github.com/CosmWasm/wasmvm/v2/types"
)

// Section ids of the Wasm binary format.
const (
	sectionCustom    = 0
	sectionType      = 1
	sectionImport    = 2
	sectionFunction  = 3
	sectionTable     = 4
	sectionMemory    = 5
	sectionGlobal    = 6
	sectionExport    = 7
	sectionStart     = 8
	sectionElement   = 9
	sectionCode      = 10
	sectionData      = 11
	sectionDataCount = 12
)

// Value type bytes.
const (
	valI32       = 0x7F
	valI64       = 0x7E
	valF32       = 0x7D
	valF64       = 0x7C
	valV128      = 0x7B
	valFuncref   = 0x70
	valExternref = 0x6F
)

// Import and export kinds.
const (
	kindFunc   = 0x00
	kindTable  = 0x01
	kindMemory = 0x02
	kindGlobal = 0x03
)

// migrateVersionSection is the custom section contracts use to expose their
// migrate version as ASCII decimal digits.
const migrateVersionSection = "cw_migrate_version"

type funcType struct {
	params  []byte
	results []byte
}

type limits struct {
	min    uint32
	max    uint32
	hasMax bool
}

type importEntry struct {
	module string
	name   string
	kind   byte
}

// Module is the structural view of a contract binary: enough to run the
// static rules and produce an analysis report, nothing more. Full
// validation of the code happens in the engine when the module is compiled.
type Module struct {
	types          []funcType
	imports        []importEntry
	funcs          []uint32
	tables         []limits
	memories       []limits
	exports        map[string]byte
	migrateVersion *uint64
	floatUsage     string
}

// Parse decodes the structure of a Wasm binary. It rejects binaries that are
// not Wasm, use an unknown binary version, are structurally broken, or
// contain instructions outside the supported deterministic set.
func Parse(code []byte) (*Module, error) {
	if len(code) < 8 {
		return nil, types.NewStaticValidationError("binary of %d bytes is shorter than the 8 byte header", len(code))
	}
	if string(code[0:4]) != "\x00asm" {
		return nil, types.NewStaticValidationError("binary does not start with the Wasm magic number")
	}
	if version := binary.LittleEndian.Uint32(code[4:8]); version != 1 {
		return nil, types.NewStaticValidationError("unsupported Wasm binary version %d", version)
	}

	m := &Module{exports: make(map[string]byte)}
	r := &reader{buf: code, pos: 8}
	lastRank := 0
	for r.len() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		body, err := r.sub(size)
		if err != nil {
			return nil, err
		}
		if id != sectionCustom {
			// non-custom sections must appear at most once, in order
			rank := sectionRank(id)
			if rank <= lastRank {
				return nil, types.NewStaticValidationError("section %d out of order", id)
			}
			lastRank = rank
		}
		if err := m.parseSection(id, body); err != nil {
			return nil, err
		}
		if body.len() > 0 {
			return nil, types.NewStaticValidationError("section %d has %d trailing bytes", id, body.len())
		}
	}
	return m, nil
}

// sectionRank maps a non-custom section id to its required position. The
// binary format orders sections by position, not id: the data count section
// (12) sits between element (9) and code (10).
func sectionRank(id byte) int {
	switch id {
	case sectionDataCount:
		return 10
	case sectionCode:
		return 11
	case sectionData:
		return 12
	default:
		return int(id)
	}
}

func (m *Module) parseSection(id byte, r *reader) error {
	switch id {
	case sectionCustom:
		return m.parseCustomSection(r)
	case sectionType:
		return m.parseTypeSection(r)
	case sectionImport:
		return m.parseImportSection(r)
	case sectionFunction:
		return m.parseFunctionSection(r)
	case sectionTable:
		return m.parseTableSection(r)
	case sectionMemory:
		return m.parseMemorySection(r)
	case sectionGlobal:
		return m.parseGlobalSection(r)
	case sectionExport:
		return m.parseExportSection(r)
	case sectionStart:
		_, err := r.readU32()
		return err
	case sectionElement:
		return m.parseElementSection(r)
	case sectionCode:
		return m.parseCodeSection(r)
	case sectionData:
		return m.parseDataSection(r)
	case sectionDataCount:
		_, err := r.readU32()
		return err
	default:
		return types.NewStaticValidationError("unknown section id %d", id)
	}
}

func (m *Module) parseCustomSection(r *reader) error {
	name, err := r.readName()
	if err != nil {
		return err
	}
	payload, err := r.take(uint32(r.len()))
	if err != nil {
		return err
	}
	if name == migrateVersionSection {
		version, err := strconv.ParseUint(string(payload), 10, 64)
		if err != nil {
			return types.NewStaticValidationError("custom section %q does not hold a decimal version: %q", migrateVersionSection, payload)
		}
		m.migrateVersion = &version
	}
	return nil
}

func (m *Module) parseTypeSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		marker, err := r.readByte()
		if err != nil {
			return err
		}
		if marker != 0x60 {
			return types.NewStaticValidationError("function type %d does not start with 0x60", i)
		}
		params, err := m.readValTypes(r, "parameter")
		if err != nil {
			return err
		}
		results, err := m.readValTypes(r, "result")
		if err != nil {
			return err
		}
		m.types = append(m.types, funcType{params: params, results: results})
	}
	return nil
}

func (m *Module) parseImportSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.readName()
		if err != nil {
			return err
		}
		name, err := r.readName()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		switch kind {
		case kindFunc:
			if _, err := r.readU32(); err != nil {
				return err
			}
		case kindTable:
			if _, err := r.readByte(); err != nil {
				return err
			}
			if _, err := readLimits(r); err != nil {
				return err
			}
		case kindMemory:
			if _, err := readLimits(r); err != nil {
				return err
			}
		case kindGlobal:
			vt, err := r.readByte()
			if err != nil {
				return err
			}
			m.noteValType(vt, "imported global")
			if _, err := r.readByte(); err != nil { // mutability
				return err
			}
		default:
			return types.NewStaticValidationError("import %q has unknown kind %d", module+"."+name, kind)
		}
		m.imports = append(m.imports, importEntry{module: module, name: name, kind: kind})
	}
	return nil
}

func (m *Module) parseFunctionSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		typeIdx, err := r.readU32()
		if err != nil {
			return err
		}
		if typeIdx >= uint32(len(m.types)) {
			return types.NewStaticValidationError("function %d references unknown type %d", i, typeIdx)
		}
		m.funcs = append(m.funcs, typeIdx)
	}
	return nil
}

func (m *Module) parseTableSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		refType, err := r.readByte()
		if err != nil {
			return err
		}
		if refType != valFuncref && refType != valExternref {
			return types.NewStaticValidationError("table %d has unknown element type 0x%02x", i, refType)
		}
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.tables = append(m.tables, lim)
	}
	return nil
}

func (m *Module) parseMemorySection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.memories = append(m.memories, lim)
	}
	return nil
}

func (m *Module) parseGlobalSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := r.readByte()
		if err != nil {
			return err
		}
		m.noteValType(vt, "global")
		if _, err := r.readByte(); err != nil { // mutability
			return err
		}
		if err := m.scanExpr(r); err != nil {
			return err
		}
	}
	return nil
}

func (m *Module) parseExportSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.readName()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		if _, err := r.readU32(); err != nil { // index
			return err
		}
		if _, exists := m.exports[name]; exists {
			return types.NewStaticValidationError("duplicate export %q", name)
		}
		m.exports[name] = kind
	}
	return nil
}

func (m *Module) parseElementSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.readU32()
		if err != nil {
			return err
		}
		if flags > 7 {
			return types.NewStaticValidationError("element segment %d has unknown flags %d", i, flags)
		}
		// table index (flags 2, 6)
		if flags == 2 || flags == 6 {
			if _, err := r.readU32(); err != nil {
				return err
			}
		}
		// offset expression (active segments: flags 0, 2, 4, 6)
		if flags%2 == 0 {
			if err := m.scanExpr(r); err != nil {
				return err
			}
		}
		// element kind or reference type (all but flags 0, 4)
		if flags != 0 && flags != 4 {
			if _, err := r.readByte(); err != nil {
				return err
			}
		}
		n, err := r.readU32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < n; j++ {
			if flags < 4 {
				// vector of function indices
				if _, err := r.readU32(); err != nil {
					return err
				}
			} else {
				// vector of init expressions
				if err := m.scanExpr(r); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Module) parseCodeSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	if int(count) != len(m.funcs) {
		return types.NewStaticValidationError("code section has %d bodies for %d functions", count, len(m.funcs))
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.readU32()
		if err != nil {
			return err
		}
		body, err := r.sub(size)
		if err != nil {
			return err
		}
		localDecls, err := body.readU32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < localDecls; j++ {
			if _, err := body.readU32(); err != nil { // repeat count
				return err
			}
			vt, err := body.readByte()
			if err != nil {
				return err
			}
			m.noteValType(vt, "local")
		}
		if err := m.scanExpr(body); err != nil {
			return err
		}
		if body.len() > 0 {
			return types.NewStaticValidationError("function body %d has %d trailing bytes", i, body.len())
		}
	}
	return nil
}

func (m *Module) parseDataSection(r *reader) error {
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.readU32()
		if err != nil {
			return err
		}
		switch flags {
		case 0, 2:
			if flags == 2 {
				if _, err := r.readU32(); err != nil { // memory index
					return err
				}
			}
			if err := m.scanExpr(r); err != nil {
				return err
			}
		case 1:
			// passive segment, no offset
		default:
			return types.NewStaticValidationError("data segment %d has unknown flags %d", i, flags)
		}
		n, err := r.readU32()
		if err != nil {
			return err
		}
		if _, err := r.take(n); err != nil {
			return err
		}
	}
	return nil
}

// readValTypes reads one value type vector of a function type and records
// float usage.
func (m *Module) readValTypes(r *reader, role string) ([]byte, error) {
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		vt, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch vt {
		case valI32, valI64, valF32, valF64, valV128, valFuncref, valExternref:
		default:
			return nil, types.NewStaticValidationError("unknown value type 0x%02x", vt)
		}
		m.noteValType(vt, "function "+role)
		out = append(out, vt)
	}
	return out, nil
}

// noteValType records the first floating point value type seen.
func (m *Module) noteValType(vt byte, where string) {
	if m.floatUsage != "" {
		return
	}
	switch vt {
	case valF32:
		m.floatUsage = "f32 " + where
	case valF64:
		m.floatUsage = "f64 " + where
	}
}

func readLimits(r *reader) (limits, error) {
	flags, err := r.readByte()
	if err != nil {
		return limits{}, err
	}
	var lim limits
	lim.min, err = r.readU32()
	if err != nil {
		return limits{}, err
	}
	switch flags {
	case 0x00:
	case 0x01:
		lim.hasMax = true
		lim.max, err = r.readU32()
		if err != nil {
			return limits{}, err
		}
	default:
		return limits{}, types.NewStaticValidationError("unknown limits flags 0x%02x", flags)
	}
	return lim, nil
}

// reader walks a byte slice with LEB128 support. All failures are static
// validation errors: a truncated binary is a malformed contract upload, not
// an internal fault.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) len() int {
	return len(r.buf) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, types.NewStaticValidationError("unexpected end of binary at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) take(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.buf)) {
		return nil, types.NewStaticValidationError("unexpected end of binary at offset %d, want %d more bytes", r.pos, n)
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

// sub returns a reader over the next n bytes.
func (r *reader) sub(n uint32) (*reader, error) {
	body, err := r.take(n)
	if err != nil {
		return nil, err
	}
	return &reader{buf: body}, nil
}

// readU32 reads a LEB128 encoded uint32.
func (r *reader) readU32() (uint32, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, types.NewStaticValidationError("integer at offset %d exceeds 32 bits", r.pos)
}

// skipSigned skips a signed LEB128 value of at most maxBytes bytes.
func (r *reader) skipSigned(maxBytes int) error {
	for i := 0; i < maxBytes; i++ {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return types.NewStaticValidationError("integer at offset %d is too long", r.pos)
}

// readName reads a length-prefixed UTF-8 string.
func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	raw, err := r.take(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", types.NewStaticValidationError("name at offset %d is not valid UTF-8", r.pos)
	}
	return string(raw), nil
}

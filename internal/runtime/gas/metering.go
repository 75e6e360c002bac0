package gas

import (
	"encoding/binary"
	"fmt"
)

// MeteringSchemaVersion identifies the metering scheme baked into compiled
// modules. It is part of the engine compatibility tag: artifacts produced
// under a different scheme are never reused.
const MeteringSchemaVersion = "gas2"

// GlobalName is the export name of the operation counter Instrument injects
// into every contract. The instance arms it with the call's operation budget
// and reads back what the contract burned.
const GlobalName = "cw_gas_remaining"

// Section ids of the Wasm binary format.
const (
	secCustom    = 0
	secImport    = 2
	secGlobal    = 6
	secExport    = 7
	secCode      = 10
	secData      = 11
	secDataCount = 12
)

// Instrument rewrites a contract binary for gas metering. A mutable i64
// counter is appended to the module's globals, exported under GlobalName,
// and every function entry and loop iteration decrements it by one; once it
// goes negative the contract traps. Charging at loop headers as well as
// entries bounds loops that make no calls and cross no host boundary.
//
// Appending the counter keeps every existing global, function and type index
// valid, so nothing else in the binary needs relocation.
func Instrument(code []byte) ([]byte, error) {
	if len(code) < 8 {
		return nil, fmt.Errorf("binary of %d bytes is shorter than the 8 byte header", len(code))
	}
	if string(code[0:4]) != "\x00asm" {
		return nil, fmt.Errorf("binary does not start with the Wasm magic number")
	}
	if version := binary.LittleEndian.Uint32(code[4:8]); version != 1 {
		return nil, fmt.Errorf("unsupported Wasm binary version %d", version)
	}

	type section struct {
		id   byte
		body []byte
	}
	r := &wasmReader{buf: code, pos: 8}
	var sections []section
	for r.len() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		body, err := r.take(size)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section{id: id, body: body})
	}

	// The counter index is the next free global index.
	var importedGlobals, definedGlobals uint32
	haveGlobal, haveExport := false, false
	for _, s := range sections {
		switch s.id {
		case secImport:
			n, err := countGlobalImports(s.body)
			if err != nil {
				return nil, err
			}
			importedGlobals = n
		case secGlobal:
			haveGlobal = true
			n, err := (&wasmReader{buf: s.body}).readU32()
			if err != nil {
				return nil, err
			}
			definedGlobals = n
		case secExport:
			haveExport = true
		}
	}
	counter := importedGlobals + definedGlobals
	seq := chargeSequence(counter)

	out := append([]byte(nil), code[:8]...)
	globalWritten, exportWritten := false, false
	for _, s := range sections {
		// Missing global or export sections are created at their ordered
		// position. Custom sections never constrain the order.
		if !haveGlobal && !globalWritten && s.id != secCustom && sectionOrder(s.id) > sectionOrder(secGlobal) {
			out = appendSection(out, secGlobal, singleEntrySection(counterGlobalEntry()))
			globalWritten = true
		}
		if !haveExport && !exportWritten && s.id != secCustom && sectionOrder(s.id) > sectionOrder(secExport) {
			out = appendSection(out, secExport, singleEntrySection(counterExportEntry(counter)))
			exportWritten = true
		}
		switch s.id {
		case secGlobal:
			body, err := appendVecEntry(s.body, counterGlobalEntry())
			if err != nil {
				return nil, err
			}
			out = appendSection(out, secGlobal, body)
		case secExport:
			if err := checkExportNames(s.body); err != nil {
				return nil, err
			}
			body, err := appendVecEntry(s.body, counterExportEntry(counter))
			if err != nil {
				return nil, err
			}
			out = appendSection(out, secExport, body)
		case secCode:
			body, err := rewriteCodeSection(s.body, seq)
			if err != nil {
				return nil, err
			}
			out = appendSection(out, secCode, body)
		default:
			out = appendSection(out, s.id, s.body)
		}
	}
	if !haveGlobal && !globalWritten {
		out = appendSection(out, secGlobal, singleEntrySection(counterGlobalEntry()))
	}
	if !haveExport && !exportWritten {
		out = appendSection(out, secExport, singleEntrySection(counterExportEntry(counter)))
	}
	return out, nil
}

// chargeSequence is the instruction sequence injected at every charge point:
// decrement the counter by one and trap once it goes negative. It pushes and
// pops its own operands only, so it is valid at any point in a body.
func chargeSequence(counter uint32) []byte {
	g := uleb128(uint64(counter))
	var seq []byte
	seq = append(seq, 0x23) // global.get
	seq = append(seq, g...)
	seq = append(seq, 0x42, 0x01) // i64.const 1
	seq = append(seq, 0x7D)       // i64.sub
	seq = append(seq, 0x24)       // global.set
	seq = append(seq, g...)
	seq = append(seq, 0x23) // global.get
	seq = append(seq, g...)
	seq = append(seq,
		0x42, 0x00, // i64.const 0
		0x53,       // i64.lt_s
		0x04, 0x40, // if
		0x00, // unreachable
		0x0B, // end
	)
	return seq
}

// counterGlobalEntry is the counter's global section entry: a mutable i64
// initialized to zero.
func counterGlobalEntry() []byte {
	return []byte{0x7E, 0x01, 0x42, 0x00, 0x0B}
}

// counterExportEntry exports the counter global under GlobalName.
func counterExportEntry(counter uint32) []byte {
	out := uleb128(uint64(len(GlobalName)))
	out = append(out, GlobalName...)
	out = append(out, 0x03)
	return append(out, uleb128(uint64(counter))...)
}

// sectionOrder maps a non-custom section id to its required position. The
// data count section (12) sits between element (9) and code (10).
func sectionOrder(id byte) int {
	switch id {
	case secDataCount:
		return 10
	case secCode:
		return 11
	case secData:
		return 12
	default:
		return int(id)
	}
}

func appendSection(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = append(out, uleb128(uint64(len(body)))...)
	return append(out, body...)
}

func singleEntrySection(entry []byte) []byte {
	return append([]byte{0x01}, entry...)
}

// appendVecEntry re-encodes a vector-shaped section body with one more
// entry at the end.
func appendVecEntry(body, entry []byte) ([]byte, error) {
	r := &wasmReader{buf: body}
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := uleb128(uint64(count) + 1)
	out = append(out, body[r.pos:]...)
	return append(out, entry...), nil
}

// checkExportNames rejects binaries that already export something under the
// counter's name, which would shadow the injected counter.
func checkExportNames(body []byte) error {
	r := &wasmReader{buf: body}
	count, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		n, err := r.readU32()
		if err != nil {
			return err
		}
		name, err := r.take(n)
		if err != nil {
			return err
		}
		if string(name) == GlobalName {
			return fmt.Errorf("export name %q is reserved for the gas counter", GlobalName)
		}
		if _, err := r.readByte(); err != nil {
			return err
		}
		if _, err := r.readU32(); err != nil {
			return err
		}
	}
	return nil
}

// countGlobalImports walks the import section and counts the global imports,
// which precede all defined globals in the index space.
func countGlobalImports(body []byte) (uint32, error) {
	r := &wasmReader{buf: body}
	count, err := r.readU32()
	if err != nil {
		return 0, err
	}
	var globals uint32
	for i := uint32(0); i < count; i++ {
		for j := 0; j < 2; j++ { // module and name
			n, err := r.readU32()
			if err != nil {
				return 0, err
			}
			if _, err := r.take(n); err != nil {
				return 0, err
			}
		}
		kind, err := r.readByte()
		if err != nil {
			return 0, err
		}
		switch kind {
		case 0x00: // function
			if _, err := r.readU32(); err != nil {
				return 0, err
			}
		case 0x01: // table
			if _, err := r.readByte(); err != nil {
				return 0, err
			}
			if err := skipLimits(r); err != nil {
				return 0, err
			}
		case 0x02: // memory
			if err := skipLimits(r); err != nil {
				return 0, err
			}
		case 0x03: // global
			if _, err := r.take(2); err != nil { // value type, mutability
				return 0, err
			}
			globals++
		default:
			return 0, fmt.Errorf("import %d has unknown kind %d", i, kind)
		}
	}
	return globals, nil
}

func skipLimits(r *wasmReader) error {
	flags, err := r.readByte()
	if err != nil {
		return err
	}
	if _, err := r.readU32(); err != nil {
		return err
	}
	switch flags {
	case 0x00:
		return nil
	case 0x01:
		_, err := r.readU32()
		return err
	default:
		return fmt.Errorf("unknown limits flags 0x%02x", flags)
	}
}

func rewriteCodeSection(body, seq []byte) ([]byte, error) {
	r := &wasmReader{buf: body}
	count, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := uleb128(uint64(count))
	for i := uint32(0); i < count; i++ {
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		raw, err := r.take(size)
		if err != nil {
			return nil, err
		}
		rewritten, err := rewriteFuncBody(raw, seq)
		if err != nil {
			return nil, fmt.Errorf("function body %d: %w", i, err)
		}
		out = append(out, uleb128(uint64(len(rewritten)))...)
		out = append(out, rewritten...)
	}
	if r.len() > 0 {
		return nil, fmt.Errorf("code section has %d trailing bytes", r.len())
	}
	return out, nil
}

// rewriteFuncBody copies the local declarations, charges once for the call
// and rewrites the expression with a charge per loop header.
func rewriteFuncBody(body, seq []byte) ([]byte, error) {
	r := &wasmReader{buf: body}
	decls, err := r.readU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < decls; i++ {
		if _, err := r.readU32(); err != nil { // repeat count
			return nil, err
		}
		if _, err := r.readByte(); err != nil { // value type
			return nil, err
		}
	}
	out := append([]byte(nil), body[:r.pos]...)
	out = append(out, seq...)
	expr, err := rewriteExpr(r, seq)
	if err != nil {
		return nil, err
	}
	out = append(out, expr...)
	if r.len() > 0 {
		return nil, fmt.Errorf("%d trailing bytes after expression", r.len())
	}
	return out, nil
}

// rewriteExpr walks one expression up to and including its terminating end
// opcode, copying it with a charge spliced in after every loop header. Every
// br that targets a loop lands on the loop's first instruction, so the back
// edge cannot skip the charge.
func rewriteExpr(r *wasmReader, seq []byte) ([]byte, error) {
	var out []byte
	start := r.pos
	depth := 0
	for {
		op, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch {
		case op == 0x0B: // end
			if depth == 0 {
				return append(out, r.buf[start:r.pos]...), nil
			}
			depth--
		case op == 0x03: // loop: one charge per iteration
			if err := skipBlockType(r); err != nil {
				return nil, err
			}
			out = append(out, r.buf[start:r.pos]...)
			out = append(out, seq...)
			start = r.pos
			depth++
		case op == 0x02 || op == 0x04: // block, if
			if err := skipBlockType(r); err != nil {
				return nil, err
			}
			depth++
		case op == 0x0C || op == 0x0D || op == 0x10 || // br, br_if, call
			(op >= 0x20 && op <= 0x26) || // local.*, global.*, table.get/set
			op == 0xD2: // ref.func
			if _, err := r.readU32(); err != nil {
				return nil, err
			}
		case op == 0x0E: // br_table
			n, err := r.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i <= n; i++ {
				if _, err := r.readU32(); err != nil {
					return nil, err
				}
			}
		case op == 0x11: // call_indirect
			if _, err := r.readU32(); err != nil {
				return nil, err
			}
			if _, err := r.readU32(); err != nil {
				return nil, err
			}
		case op == 0x1C: // select with explicit types
			n, err := r.readU32()
			if err != nil {
				return nil, err
			}
			if _, err := r.take(n); err != nil {
				return nil, err
			}
		case op == 0xD0: // ref.null
			if _, err := r.readByte(); err != nil {
				return nil, err
			}
		case op >= 0x28 && op <= 0x3E: // loads and stores: align + offset
			if _, err := r.readU32(); err != nil {
				return nil, err
			}
			if _, err := r.readU32(); err != nil {
				return nil, err
			}
		case op == 0x3F || op == 0x40: // memory.size, memory.grow
			if _, err := r.readByte(); err != nil {
				return nil, err
			}
		case op == 0x41: // i32.const
			if err := r.skipSigned(5); err != nil {
				return nil, err
			}
		case op == 0x42: // i64.const
			if err := r.skipSigned(10); err != nil {
				return nil, err
			}
		case op == 0x43: // f32.const
			if _, err := r.take(4); err != nil {
				return nil, err
			}
		case op == 0x44: // f64.const
			if _, err := r.take(8); err != nil {
				return nil, err
			}
		case op == 0xFC:
			if err := skipMiscOp(r); err != nil {
				return nil, err
			}
		case op == 0xFD:
			return nil, fmt.Errorf("SIMD instructions are not supported")
		case op == 0xFE:
			return nil, fmt.Errorf("atomic instructions are not supported")
		default:
			if !plainOp(op) {
				return nil, fmt.Errorf("unsupported opcode 0x%02x at offset %d", op, r.pos-1)
			}
		}
	}
}

// skipMiscOp handles the 0xFC-prefixed instruction space.
func skipMiscOp(r *wasmReader) error {
	sub, err := r.readU32()
	if err != nil {
		return err
	}
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7: // saturating float truncations
		return nil
	case 8: // memory.init
		if _, err := r.readU32(); err != nil {
			return err
		}
		_, err := r.readByte()
		return err
	case 9, 13, 15, 16, 17: // data.drop, elem.drop, table.grow, table.size, table.fill
		_, err := r.readU32()
		return err
	case 10: // memory.copy
		if _, err := r.readByte(); err != nil {
			return err
		}
		_, err := r.readByte()
		return err
	case 11: // memory.fill
		_, err := r.readByte()
		return err
	case 12, 14: // table.init, table.copy
		if _, err := r.readU32(); err != nil {
			return err
		}
		_, err := r.readU32()
		return err
	default:
		return fmt.Errorf("unsupported opcode 0xFC %d", sub)
	}
}

// skipBlockType consumes a block type: a single byte covers empty, every
// value type and the one byte type indices, anything else is a signed 33 bit
// type index.
func skipBlockType(r *wasmReader) error {
	b, err := r.readByte()
	if err != nil {
		return err
	}
	if b&0x80 == 0 {
		return nil
	}
	return r.skipSigned(4)
}

// plainOp reports whether op is a known instruction without immediates that
// is not handled elsewhere in rewriteExpr.
func plainOp(op byte) bool {
	switch op {
	case 0x00, 0x01, 0x05, 0x0F, 0x1A, 0x1B, 0xD1: // unreachable, nop, else, return, drop, select, ref.is_null
		return true
	}
	// numeric comparisons, arithmetic, conversions and sign extensions
	return op >= 0x45 && op <= 0xC4
}

// wasmReader walks a byte slice with LEB128 support.
type wasmReader struct {
	buf []byte
	pos int
}

func (r *wasmReader) len() int {
	return len(r.buf) - r.pos
}

func (r *wasmReader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("unexpected end of binary at offset %d", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *wasmReader) take(n uint32) ([]byte, error) {
	if uint64(r.pos)+uint64(n) > uint64(len(r.buf)) {
		return nil, fmt.Errorf("unexpected end of binary at offset %d, want %d more bytes", r.pos, n)
	}
	out := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *wasmReader) readU32() (uint32, error) {
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
	return 0, fmt.Errorf("integer at offset %d exceeds 32 bits", r.pos)
}

func (r *wasmReader) skipSigned(maxBytes int) error {
	for i := 0; i < maxBytes; i++ {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return fmt.Errorf("integer at offset %d is too long", r.pos)
}

func uleb128(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

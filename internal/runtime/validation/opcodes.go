package validation

import (
	"github.com/CosmWasm/wasmvm/v2/types"
)

// floatOps maps every floating point opcode of the core instruction set to
// its name. Any hit is recorded and later rejected: float results depend on
// hardware NaN behavior and have no place in consensus critical code.
var floatOps = map[byte]string{
	0x2A: "f32.load", 0x2B: "f64.load",
	0x38: "f32.store", 0x39: "f64.store",
	0x43: "f32.const", 0x44: "f64.const",
	0x5B: "f32.eq", 0x5C: "f32.ne", 0x5D: "f32.lt", 0x5E: "f32.gt", 0x5F: "f32.le", 0x60: "f32.ge",
	0x61: "f64.eq", 0x62: "f64.ne", 0x63: "f64.lt", 0x64: "f64.gt", 0x65: "f64.le", 0x66: "f64.ge",
	0x8B: "f32.abs", 0x8C: "f32.neg", 0x8D: "f32.ceil", 0x8E: "f32.floor", 0x8F: "f32.trunc",
	0x90: "f32.nearest", 0x91: "f32.sqrt", 0x92: "f32.add", 0x93: "f32.sub", 0x94: "f32.mul",
	0x95: "f32.div", 0x96: "f32.min", 0x97: "f32.max", 0x98: "f32.copysign",
	0x99: "f64.abs", 0x9A: "f64.neg", 0x9B: "f64.ceil", 0x9C: "f64.floor", 0x9D: "f64.trunc",
	0x9E: "f64.nearest", 0x9F: "f64.sqrt", 0xA0: "f64.add", 0xA1: "f64.sub", 0xA2: "f64.mul",
	0xA3: "f64.div", 0xA4: "f64.min", 0xA5: "f64.max", 0xA6: "f64.copysign",
	0xA8: "i32.trunc_f32_s", 0xA9: "i32.trunc_f32_u", 0xAA: "i32.trunc_f64_s", 0xAB: "i32.trunc_f64_u",
	0xAE: "i64.trunc_f32_s", 0xAF: "i64.trunc_f32_u", 0xB0: "i64.trunc_f64_s", 0xB1: "i64.trunc_f64_u",
	0xB2: "f32.convert_i32_s", 0xB3: "f32.convert_i32_u", 0xB4: "f32.convert_i64_s", 0xB5: "f32.convert_i64_u",
	0xB6: "f32.demote_f64",
	0xB7: "f64.convert_i32_s", 0xB8: "f64.convert_i32_u", 0xB9: "f64.convert_i64_s", 0xBA: "f64.convert_i64_u",
	0xBB: "f64.promote_f32",
	0xBC: "i32.reinterpret_f32", 0xBD: "i64.reinterpret_f64", 0xBE: "f32.reinterpret_i32", 0xBF: "f64.reinterpret_i64",
}

// truncSatOps are the 0xFC-prefixed saturating float truncations.
var truncSatOps = [8]string{
	"i32.trunc_sat_f32_s", "i32.trunc_sat_f32_u", "i32.trunc_sat_f64_s", "i32.trunc_sat_f64_u",
	"i64.trunc_sat_f32_s", "i64.trunc_sat_f32_u", "i64.trunc_sat_f64_s", "i64.trunc_sat_f64_u",
}

// noteFloat records the first floating point instruction seen.
func (m *Module) noteFloat(name string) {
	if m.floatUsage == "" {
		m.floatUsage = name
	}
}

// scanExpr walks one expression up to and including its terminating end
// opcode, skipping immediates and recording float usage. Structure beyond
// instruction framing is not checked here, the engine validates that when
// compiling.
func (m *Module) scanExpr(r *reader) error {
	depth := 0
	for {
		op, err := r.readByte()
		if err != nil {
			return err
		}
		if name, ok := floatOps[op]; ok {
			m.noteFloat(name)
		}
		switch {
		case op == 0x0B: // end
			if depth == 0 {
				return nil
			}
			depth--
		case op == 0x02 || op == 0x03 || op == 0x04: // block, loop, if
			if err := m.readBlockType(r); err != nil {
				return err
			}
			depth++
		case op == 0x0C || op == 0x0D || op == 0x10 || // br, br_if, call
			(op >= 0x20 && op <= 0x26) || // local.*, global.*, table.get/set
			op == 0xD2: // ref.func
			if _, err := r.readU32(); err != nil {
				return err
			}
		case op == 0x0E: // br_table
			n, err := r.readU32()
			if err != nil {
				return err
			}
			for i := uint32(0); i <= n; i++ {
				if _, err := r.readU32(); err != nil {
					return err
				}
			}
		case op == 0x11: // call_indirect
			if _, err := r.readU32(); err != nil {
				return err
			}
			if _, err := r.readU32(); err != nil {
				return err
			}
		case op == 0x1C: // select with explicit types
			n, err := r.readU32()
			if err != nil {
				return err
			}
			for i := uint32(0); i < n; i++ {
				vt, err := r.readByte()
				if err != nil {
					return err
				}
				m.noteValType(vt, "select")
			}
		case op == 0xD0: // ref.null
			if _, err := r.readByte(); err != nil {
				return err
			}
		case op >= 0x28 && op <= 0x3E: // loads and stores: align + offset
			if _, err := r.readU32(); err != nil {
				return err
			}
			if _, err := r.readU32(); err != nil {
				return err
			}
		case op == 0x3F || op == 0x40: // memory.size, memory.grow
			if _, err := r.readByte(); err != nil {
				return err
			}
		case op == 0x41: // i32.const
			if err := r.skipSigned(5); err != nil {
				return err
			}
		case op == 0x42: // i64.const
			if err := r.skipSigned(10); err != nil {
				return err
			}
		case op == 0x43: // f32.const
			if _, err := r.take(4); err != nil {
				return err
			}
		case op == 0x44: // f64.const
			if _, err := r.take(8); err != nil {
				return err
			}
		case op == 0xFC:
			if err := m.scanMiscOp(r); err != nil {
				return err
			}
		case op == 0xFD:
			return types.NewStaticValidationError("SIMD instructions are not supported")
		case op == 0xFE:
			return types.NewStaticValidationError("atomic instructions are not supported")
		default:
			if !hasNoImmediate(op) {
				return types.NewStaticValidationError("unsupported opcode 0x%02x at offset %d", op, r.pos-1)
			}
		}
	}
}

// scanMiscOp handles the 0xFC-prefixed instruction space.
func (m *Module) scanMiscOp(r *reader) error {
	sub, err := r.readU32()
	if err != nil {
		return err
	}
	switch sub {
	case 0, 1, 2, 3, 4, 5, 6, 7: // saturating float truncations
		m.noteFloat(truncSatOps[sub])
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
		return types.NewStaticValidationError("unsupported opcode 0xFC %d", sub)
	}
}

// readBlockType consumes a block type: empty, a single value type, or a
// signed 33 bit index into the type section.
func (m *Module) readBlockType(r *reader) error {
	b, err := r.readByte()
	if err != nil {
		return err
	}
	switch b {
	case 0x40, valI32, valI64, valV128, valFuncref, valExternref:
		return nil
	case valF32, valF64:
		m.noteValType(b, "block result")
		return nil
	}
	if b&0x80 == 0 {
		return nil // single byte type index
	}
	return r.skipSigned(4)
}

// hasNoImmediate reports whether op is a known instruction without
// immediates that is not handled elsewhere in scanExpr.
func hasNoImmediate(op byte) bool {
	switch op {
	case 0x00, 0x01, 0x05, 0x0F, 0x1A, 0x1B, 0xD1: // unreachable, nop, else, return, drop, select, ref.is_null
		return true
	}
	// numeric comparisons, arithmetic, conversions and sign extensions
	return op >= 0x45 && op <= 0xC4
}

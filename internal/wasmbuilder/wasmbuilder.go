// Package wasmbuilder assembles small WebAssembly binaries in memory.
//
// The repository ships no contract fixtures. Tests that need a binary with
// precise properties (a missing export, a float instruction buried in one
// function body, a table without a maximum) assemble exactly the bytes they
// need instead of carrying unreviewable .wasm files.
package wasmbuilder

import (
	"encoding/binary"
	"math"
)

// Value types as encoded in binaries.
const (
	I32 byte = 0x7F
	I64 byte = 0x7E
	F32 byte = 0x7D
	F64 byte = 0x7C
)

const opEnd = 0x0B

// Builder accumulates module contents and emits sections in the order the
// binary format requires. Function imports must be declared before the
// first AddFunc call so that function indices stay stable.
type Builder struct {
	types           [][]byte
	imports         [][]byte
	importedFuncs   uint32
	importedGlobals uint32
	funcTypes       []uint32
	bodies          [][]byte
	tables          [][]byte
	memories        [][]byte
	globals         [][]byte
	exports         [][]byte
	datas           [][]byte
	customs         [][]byte
}

func New() *Builder {
	return &Builder{}
}

// AddType registers a function signature and returns its type index.
func (b *Builder) AddType(params, results []byte) uint32 {
	enc := []byte{0x60}
	enc = append(enc, uleb(uint64(len(params)))...)
	enc = append(enc, params...)
	enc = append(enc, uleb(uint64(len(results)))...)
	enc = append(enc, results...)
	b.types = append(b.types, enc)
	return uint32(len(b.types) - 1)
}

// ImportFunc declares a function import and returns its function index.
func (b *Builder) ImportFunc(module, name string, typeIdx uint32) uint32 {
	enc := encodeName(module)
	enc = append(enc, encodeName(name)...)
	enc = append(enc, 0x00)
	enc = append(enc, uleb(uint64(typeIdx))...)
	b.imports = append(b.imports, enc)
	b.importedFuncs++
	return b.importedFuncs - 1
}

// ImportMemory declares a memory import.
func (b *Builder) ImportMemory(module, name string, minPages uint32) {
	enc := encodeName(module)
	enc = append(enc, encodeName(name)...)
	enc = append(enc, 0x02)
	enc = append(enc, encodeLimits(minPages, 0, false)...)
	b.imports = append(b.imports, enc)
}

// ImportTable declares a funcref table import.
func (b *Builder) ImportTable(module, name string, minElems, maxElems uint32) {
	enc := encodeName(module)
	enc = append(enc, encodeName(name)...)
	enc = append(enc, 0x01, 0x70)
	enc = append(enc, encodeLimits(minElems, maxElems, true)...)
	b.imports = append(b.imports, enc)
}

// ImportGlobal declares a global import.
func (b *Builder) ImportGlobal(module, name string, valType byte, mutable bool) {
	enc := encodeName(module)
	enc = append(enc, encodeName(name)...)
	enc = append(enc, 0x03, valType, boolByte(mutable))
	b.imports = append(b.imports, enc)
	b.importedGlobals++
}

// AddFunc defines a function and returns its function index. locals holds
// one value type per declared local. The trailing end opcode is appended
// for the caller.
func (b *Builder) AddFunc(typeIdx uint32, locals []byte, code ...[]byte) uint32 {
	body := uleb(uint64(len(locals)))
	for _, local := range locals {
		body = append(body, 0x01, local)
	}
	for _, chunk := range code {
		body = append(body, chunk...)
	}
	body = append(body, opEnd)
	b.funcTypes = append(b.funcTypes, typeIdx)
	b.bodies = append(b.bodies, body)
	return b.importedFuncs + uint32(len(b.funcTypes)) - 1
}

// NextFuncIndex returns the index the next AddFunc call will assign, which
// lets a function body call itself.
func (b *Builder) NextFuncIndex() uint32 {
	return b.importedFuncs + uint32(len(b.funcTypes))
}

// AddMemory declares a linear memory without a maximum.
func (b *Builder) AddMemory(minPages uint32) {
	b.memories = append(b.memories, encodeLimits(minPages, 0, false))
}

// AddMemoryWithMax declares a linear memory with a declared maximum.
func (b *Builder) AddMemoryWithMax(minPages, maxPages uint32) {
	b.memories = append(b.memories, encodeLimits(minPages, maxPages, true))
}

// AddTable declares a funcref table without a maximum.
func (b *Builder) AddTable(minElems uint32) {
	b.tables = append(b.tables, append([]byte{0x70}, encodeLimits(minElems, 0, false)...))
}

// AddTableWithMax declares a funcref table with a declared maximum.
func (b *Builder) AddTableWithMax(minElems, maxElems uint32) {
	b.tables = append(b.tables, append([]byte{0x70}, encodeLimits(minElems, maxElems, true)...))
}

// AddGlobal defines a global with the given init expression and returns its
// global index. The trailing end opcode is appended for the caller.
func (b *Builder) AddGlobal(valType byte, mutable bool, init ...[]byte) uint32 {
	enc := []byte{valType, boolByte(mutable)}
	for _, chunk := range init {
		enc = append(enc, chunk...)
	}
	enc = append(enc, opEnd)
	b.globals = append(b.globals, enc)
	return b.importedGlobals + uint32(len(b.globals)) - 1
}

// ExportFunc exports a function under the given name.
func (b *Builder) ExportFunc(name string, funcIdx uint32) {
	b.export(name, 0x00, funcIdx)
}

// ExportTable exports table 0 under the given name.
func (b *Builder) ExportTable(name string) {
	b.export(name, 0x01, 0)
}

// ExportMemory exports memory 0 under the given name.
func (b *Builder) ExportMemory(name string) {
	b.export(name, 0x02, 0)
}

// ExportGlobal exports a global under the given name.
func (b *Builder) ExportGlobal(name string, globalIdx uint32) {
	b.export(name, 0x03, globalIdx)
}

func (b *Builder) export(name string, kind byte, idx uint32) {
	enc := encodeName(name)
	enc = append(enc, kind)
	enc = append(enc, uleb(uint64(idx))...)
	b.exports = append(b.exports, enc)
}

// AddData places bytes at a fixed offset in memory 0.
func (b *Builder) AddData(offset uint32, data []byte) {
	enc := []byte{0x00}
	enc = append(enc, I32Const(int32(offset))...)
	enc = append(enc, opEnd)
	enc = append(enc, uleb(uint64(len(data)))...)
	enc = append(enc, data...)
	b.datas = append(b.datas, enc)
}

// AddCustomSection appends a custom section after all other sections.
func (b *Builder) AddCustomSection(name string, payload []byte) {
	enc := encodeName(name)
	enc = append(enc, payload...)
	b.customs = append(b.customs, enc)
}

// Build emits the binary.
func (b *Builder) Build() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00}
	out = appendVecSection(out, 1, b.types)
	out = appendVecSection(out, 2, b.imports)
	if len(b.funcTypes) > 0 {
		entries := make([][]byte, len(b.funcTypes))
		for i, typeIdx := range b.funcTypes {
			entries[i] = uleb(uint64(typeIdx))
		}
		out = appendVecSection(out, 3, entries)
	}
	out = appendVecSection(out, 4, b.tables)
	out = appendVecSection(out, 5, b.memories)
	out = appendVecSection(out, 6, b.globals)
	out = appendVecSection(out, 7, b.exports)
	if len(b.bodies) > 0 {
		entries := make([][]byte, len(b.bodies))
		for i, body := range b.bodies {
			entries[i] = append(uleb(uint64(len(body))), body...)
		}
		out = appendVecSection(out, 10, entries)
	}
	out = appendVecSection(out, 11, b.datas)
	for _, custom := range b.customs {
		out = append(out, 0x00)
		out = append(out, uleb(uint64(len(custom)))...)
		out = append(out, custom...)
	}
	return out
}

func appendVecSection(out []byte, id byte, entries [][]byte) []byte {
	if len(entries) == 0 {
		return out
	}
	content := uleb(uint64(len(entries)))
	for _, entry := range entries {
		content = append(content, entry...)
	}
	out = append(out, id)
	out = append(out, uleb(uint64(len(content)))...)
	return append(out, content...)
}

// Instruction helpers for hand-written function bodies.

func I32Const(v int32) []byte {
	return append([]byte{0x41}, sleb(int64(v))...)
}

func F32Const(v float32) []byte {
	out := []byte{0x43, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[1:], math.Float32bits(v))
	return out
}

func LocalGet(i uint32) []byte {
	return append([]byte{0x20}, uleb(uint64(i))...)
}

func LocalSet(i uint32) []byte {
	return append([]byte{0x21}, uleb(uint64(i))...)
}

func GlobalGet(i uint32) []byte {
	return append([]byte{0x23}, uleb(uint64(i))...)
}

func GlobalSet(i uint32) []byte {
	return append([]byte{0x24}, uleb(uint64(i))...)
}

func I32Add() []byte {
	return []byte{0x6A}
}

func F32Add() []byte {
	return []byte{0x92}
}

// I32Store stores an i32 at the address on the stack plus a static offset.
func I32Store(offset uint32) []byte {
	return append([]byte{0x36, 0x02}, uleb(uint64(offset))...)
}

func Call(funcIdx uint32) []byte {
	return append([]byte{0x10}, uleb(uint64(funcIdx))...)
}

func Unreachable() []byte {
	return []byte{0x00}
}

// Loop wraps the given code in an untyped loop block.
func Loop(code ...[]byte) []byte {
	out := []byte{0x03, 0x40}
	for _, chunk := range code {
		out = append(out, chunk...)
	}
	return append(out, opEnd)
}

// Br branches to the enclosing block at the given depth.
func Br(depth uint32) []byte {
	return append([]byte{0x0C}, uleb(uint64(depth))...)
}

func encodeName(name string) []byte {
	return append(uleb(uint64(len(name))), name...)
}

func encodeLimits(min, max uint32, hasMax bool) []byte {
	if hasMax {
		enc := append([]byte{0x01}, uleb(uint64(min))...)
		return append(enc, uleb(uint64(max))...)
	}
	return append([]byte{0x00}, uleb(uint64(min))...)
}

func boolByte(v bool) byte {
	if v {
		return 0x01
	}
	return 0x00
}

func uleb(v uint64) []byte {
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

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

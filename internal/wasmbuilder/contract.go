package wasmbuilder

import (
	"strconv"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
)

// Static layout shared by the canned contracts. Region descriptors live low
// in the first page, their payloads above them, and the bump allocator hands
// out memory from the second page up.
const (
	respRegionPtr  = 16
	queryRegionPtr = 32
	ackRegionPtr   = 48
	openRegionPtr  = 64
	keyRegionPtr   = 80
	valueRegionPtr = 96
	debugRegionPtr = 112

	respPayloadAddr  = 256
	queryPayloadAddr = 384
	ackPayloadAddr   = 448
	openPayloadAddr  = 560
	keyPayloadAddr   = 640
	valuePayloadAddr = 704
	debugPayloadAddr = 768

	heapBase            = 65536
	contractMemoryPages = 32
)

var (
	respJSON  = []byte(`{"ok":{"messages":[],"attributes":[],"events":[]}}`)
	queryJSON = []byte(`{"ok":"e30="}`)
	ackJSON   = []byte(`{"ok":{"acknowledgement":"e30=","messages":[],"attributes":[],"events":[]}}`)
	openJSON  = []byte(`{"ok":null}`)
	hostKey   = []byte("canned-key")
	hostValue = []byte("canned-value")
	debugMsg  = []byte("contract debug message")
)

// ContractResponse is the body every canned entry point except query reports.
func ContractResponse() []byte { return append([]byte(nil), respJSON...) }

// QueryResponse is the body the canned query entry point reports. Its ok
// field is the base64 encoding of an empty JSON object.
func QueryResponse() []byte { return append([]byte(nil), queryJSON...) }

// AckResponse is the body the canned ibc_packet_receive entry point reports.
func AckResponse() []byte { return append([]byte(nil), ackJSON...) }

// ChannelOpenResponse is the body the canned ibc_channel_open entry point
// reports.
func ChannelOpenResponse() []byte { return append([]byte(nil), openJSON...) }

// HostCallKey is the store key the HostCallContract execute entry writes.
func HostCallKey() []byte { return append([]byte(nil), hostKey...) }

// HostCallValue is the store value the HostCallContract execute entry writes.
func HostCallValue() []byte { return append([]byte(nil), hostValue...) }

// DebugMessage is the message the HostCallContract execute entry sends to
// the debug import.
func DebugMessage() []byte { return append([]byte(nil), debugMsg...) }

type contractLayout struct {
	b      *Builder
	t2, t3 uint32 // (env, msg) and (env, info, msg) entry signatures
	nop    uint32
	e2, e3 uint32 // canned entries returning the standard response
}

// assembleBase adds the memory, the bump allocator, the marker exports and
// the canned response data every contract shares. Imports must already be
// declared on b.
func assembleBase(b *Builder) contractLayout {
	l := contractLayout{b: b}
	tNop := b.AddType(nil, nil)
	tAlloc := b.AddType([]byte{I32}, []byte{I32})
	tFree := b.AddType([]byte{I32}, nil)
	l.t2 = b.AddType([]byte{I32, I32}, []byte{I32})
	l.t3 = b.AddType([]byte{I32, I32, I32}, []byte{I32})

	l.nop = b.AddFunc(tNop, nil)

	// allocate bumps the heap pointer and returns a region descriptor
	// immediately followed by its buffer.
	heap := b.AddGlobal(I32, true, I32Const(heapBase))
	allocate := b.AddFunc(tAlloc, []byte{I32},
		GlobalGet(heap), LocalSet(1),
		LocalGet(1), I32Const(12), I32Add(), LocalGet(0), I32Add(), GlobalSet(heap),
		LocalGet(1), LocalGet(1), I32Const(12), I32Add(), I32Store(0),
		LocalGet(1), LocalGet(0), I32Store(4),
		LocalGet(1), I32Const(0), I32Store(8),
		LocalGet(1),
	)
	deallocate := b.AddFunc(tFree, nil)

	b.AddMemory(contractMemoryPages)
	b.ExportMemory("memory")
	b.ExportFunc("interface_version_8", l.nop)
	b.ExportFunc("allocate", allocate)
	b.ExportFunc("deallocate", deallocate)

	writeStatic(b, respRegionPtr, respPayloadAddr, respJSON)
	writeStatic(b, queryRegionPtr, queryPayloadAddr, queryJSON)
	return l
}

// writeStatic plants a payload and a region descriptor pointing at it.
func writeStatic(b *Builder, regionPtr, payloadAddr uint32, payload []byte) {
	region := memory.Region{
		Offset:   payloadAddr,
		Capacity: uint32(len(payload)),
		Length:   uint32(len(payload)),
	}
	b.AddData(regionPtr, region.Bytes())
	b.AddData(payloadAddr, payload)
}

// entry adds a function of the given signature that ignores its arguments
// and returns a pointer to a static region.
func (l contractLayout) entry(typeIdx, regionPtr uint32) uint32 {
	return l.b.AddFunc(typeIdx, nil, I32Const(int32(regionPtr)))
}

// assembleCore is assembleBase plus every standard entry point except
// execute and migrate, which the canned variants wire themselves.
func assembleCore(b *Builder) contractLayout {
	l := assembleBase(b)
	l.e3 = l.entry(l.t3, respRegionPtr)
	l.e2 = l.entry(l.t2, respRegionPtr)
	query := l.entry(l.t2, queryRegionPtr)
	b.ExportFunc("instantiate", l.e3)
	b.ExportFunc("query", query)
	b.ExportFunc("sudo", l.e2)
	b.ExportFunc("reply", l.e2)
	return l
}

// MinimalContract assembles the smallest module that passes static
// validation: the marker and allocator exports plus one memory, no entry
// points.
func MinimalContract() []byte {
	b := New()
	assembleBase(b)
	return b.Build()
}

// Contract assembles a working contract. Every entry point ignores its
// message and returns a canned response, allocate is a real bump allocator
// and deallocate is a no-op.
func Contract() []byte {
	b := New()
	l := assembleCore(b)
	b.ExportFunc("execute", l.e3)
	b.ExportFunc("migrate", l.e2)
	return b.Build()
}

// IBCContract is Contract plus the IBC entry points and callbacks.
func IBCContract() []byte {
	b := New()
	l := assembleCore(b)
	b.ExportFunc("execute", l.e3)
	b.ExportFunc("migrate", l.e2)

	writeStatic(b, ackRegionPtr, ackPayloadAddr, ackJSON)
	writeStatic(b, openRegionPtr, openPayloadAddr, openJSON)
	open := l.entry(l.t2, openRegionPtr)
	receive := l.entry(l.t2, ackRegionPtr)
	b.ExportFunc("ibc_channel_open", open)
	b.ExportFunc("ibc_channel_connect", l.e2)
	b.ExportFunc("ibc_channel_close", l.e2)
	b.ExportFunc("ibc_packet_receive", receive)
	b.ExportFunc("ibc_packet_ack", l.e2)
	b.ExportFunc("ibc_packet_timeout", l.e2)
	b.ExportFunc("ibc_source_callback", l.e2)
	b.ExportFunc("ibc_destination_callback", l.e2)
	return b.Build()
}

// CapabilityContract is Contract plus a requires_<name> export per
// capability.
func CapabilityContract(capabilities ...string) []byte {
	b := New()
	l := assembleCore(b)
	b.ExportFunc("execute", l.e3)
	b.ExportFunc("migrate", l.e2)
	for _, capability := range capabilities {
		b.ExportFunc("requires_"+capability, l.nop)
	}
	return b.Build()
}

// MigrateVersionContract is Contract plus a cw_migrate_version custom
// section holding the given version.
func MigrateVersionContract(version uint64) []byte {
	b := New()
	l := assembleCore(b)
	b.ExportFunc("execute", l.e3)
	b.ExportFunc("migrate", l.e2)
	b.AddCustomSection("cw_migrate_version", []byte(strconv.FormatUint(version, 10)))
	return b.Build()
}

// MigrateInfoContract is Contract with a migrate entry point that takes the
// extra migrate info argument.
func MigrateInfoContract() []byte {
	b := New()
	l := assembleCore(b)
	b.ExportFunc("execute", l.e3)
	b.ExportFunc("migrate", l.e3)
	return b.Build()
}

// TrappingContract is Contract with an execute entry point that hits an
// unreachable instruction.
func TrappingContract() []byte {
	b := New()
	l := assembleCore(b)
	execute := b.AddFunc(l.t3, nil, Unreachable())
	b.ExportFunc("execute", execute)
	b.ExportFunc("migrate", l.e2)
	return b.Build()
}

// RecursiveContract is Contract with an execute entry point that calls
// itself until gas or the call stack runs out.
func RecursiveContract() []byte {
	b := New()
	l := assembleCore(b)
	self := b.NextFuncIndex()
	execute := b.AddFunc(l.t3, nil,
		LocalGet(0), LocalGet(1), LocalGet(2), Call(self),
	)
	b.ExportFunc("execute", execute)
	b.ExportFunc("migrate", l.e2)
	return b.Build()
}

// LoopingContract is Contract with an execute entry point that spins in a
// branch loop forever. The loop body makes no calls and crosses no host
// boundary, so only the injected loop metering can stop it.
func LoopingContract() []byte {
	b := New()
	l := assembleCore(b)
	execute := b.AddFunc(l.t3, nil,
		Loop(Br(0)),
		I32Const(respRegionPtr),
	)
	b.ExportFunc("execute", execute)
	b.ExportFunc("migrate", l.e2)
	return b.Build()
}

// WritingQueryContract has a query entry point that attempts a db_write
// before answering, for read-only enforcement tests.
func WritingQueryContract() []byte {
	b := New()
	tWrite := b.AddType([]byte{I32, I32}, nil)
	dbWrite := b.ImportFunc("env", "db_write", tWrite)

	l := assembleBase(b)
	writeStatic(b, keyRegionPtr, keyPayloadAddr, hostKey)
	writeStatic(b, valueRegionPtr, valuePayloadAddr, hostValue)
	query := b.AddFunc(l.t2, nil,
		I32Const(keyRegionPtr), I32Const(valueRegionPtr), Call(dbWrite),
		I32Const(queryRegionPtr),
	)
	b.ExportFunc("instantiate", l.entry(l.t3, respRegionPtr))
	b.ExportFunc("query", query)
	return b.Build()
}

// HostCallContract is Contract with an execute entry point that writes a
// canned pair through db_write and reports through debug before returning.
func HostCallContract() []byte {
	b := New()
	tWrite := b.AddType([]byte{I32, I32}, nil)
	tDebug := b.AddType([]byte{I32}, nil)
	dbWrite := b.ImportFunc("env", "db_write", tWrite)
	debug := b.ImportFunc("env", "debug", tDebug)

	l := assembleCore(b)
	writeStatic(b, keyRegionPtr, keyPayloadAddr, hostKey)
	writeStatic(b, valueRegionPtr, valuePayloadAddr, hostValue)
	writeStatic(b, debugRegionPtr, debugPayloadAddr, debugMsg)
	execute := b.AddFunc(l.t3, nil,
		I32Const(keyRegionPtr), I32Const(valueRegionPtr), Call(dbWrite),
		I32Const(debugRegionPtr), Call(debug),
		I32Const(respRegionPtr),
	)
	b.ExportFunc("execute", execute)
	b.ExportFunc("migrate", l.e2)
	return b.Build()
}

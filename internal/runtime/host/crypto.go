package host

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"math/big"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	bls12381 "github.com/kilic/bls12-381"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/memory"
)

// Result codes of the crypto host functions. 0 and 1 report the outcome of
// a well-formed verification, higher codes report why the input could not
// be processed at all.
const (
	codeValid                  uint32 = 0
	codeInvalid                uint32 = 1
	codeInvalidHashFormat      uint32 = 3
	codeInvalidSignatureFormat uint32 = 4
	codeInvalidPubkeyFormat    uint32 = 5
	codeInvalidRecoveryParam   uint32 = 6
	codeBatchErr               uint32 = 7
	codeInvalidPoint           uint32 = 8
	codeUnknownHashFunction    uint32 = 9
	codeGenericErr             uint32 = 10
)

// Input limits of the crypto functions. Fixed-size arguments get a small
// read cap and a precise length check afterwards, list arguments a cap that
// comfortably fits the largest legitimate batch.
const (
	maxHashLength      = 64
	maxSignatureLength = 128
	maxPubkeyLength    = 128
	maxMessageLength   = 128 * 1024
	maxListLength      = 512 * 1024
	maxDstLength       = 256
)

// Compressed point sizes of BLS12-381.
const (
	g1PointLen = 48
	g2PointLen = 96
)

// hashFunctionSha256 is the only hash the hash-to-curve functions support.
const hashFunctionSha256 uint32 = 0

func (e *Environment) secp256k1Verify(mm *memory.Manager, hashPtr, sigPtr, pubkeyPtr uint32) (uint32, error) {
	hash, sig, pubkey, err := e.readVerifyArgs(mm, hashPtr, sigPtr, pubkeyPtr)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Secp256k1Verify, 0, "secp256k1_verify"); err != nil {
		return 0, err
	}
	return verifySecp256k1(hash, sig, pubkey), nil
}

func (e *Environment) secp256k1RecoverPubkey(ctx context.Context, mm *memory.Manager, hashPtr, sigPtr, param uint32) (uint64, error) {
	hash, err := mm.ReadRegion(hashPtr, maxHashLength)
	if err != nil {
		return 0, err
	}
	sig, err := mm.ReadRegion(sigPtr, maxSignatureLength)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Secp256k1RecoverPubkey, 0, "secp256k1_recover_pubkey"); err != nil {
		return 0, err
	}
	pubkey, code := recoverSecp256k1(hash, sig, param)
	if code != codeValid {
		return uint64(code) << 32, nil
	}
	ptr, err := mm.WriteData(ctx, pubkey)
	if err != nil {
		return 0, err
	}
	return uint64(ptr), nil
}

func (e *Environment) secp256r1Verify(mm *memory.Manager, hashPtr, sigPtr, pubkeyPtr uint32) (uint32, error) {
	hash, sig, pubkey, err := e.readVerifyArgs(mm, hashPtr, sigPtr, pubkeyPtr)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Secp256r1Verify, 0, "secp256r1_verify"); err != nil {
		return 0, err
	}
	return verifySecp256r1(hash, sig, pubkey), nil
}

func (e *Environment) secp256r1RecoverPubkey(ctx context.Context, mm *memory.Manager, hashPtr, sigPtr, param uint32) (uint64, error) {
	hash, err := mm.ReadRegion(hashPtr, maxHashLength)
	if err != nil {
		return 0, err
	}
	sig, err := mm.ReadRegion(sigPtr, maxSignatureLength)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Secp256r1RecoverPubkey, 0, "secp256r1_recover_pubkey"); err != nil {
		return 0, err
	}
	pubkey, code := recoverSecp256r1(hash, sig, param)
	if code != codeValid {
		return uint64(code) << 32, nil
	}
	ptr, err := mm.WriteData(ctx, pubkey)
	if err != nil {
		return 0, err
	}
	return uint64(ptr), nil
}

func (e *Environment) ed25519Verify(mm *memory.Manager, msgPtr, sigPtr, pubkeyPtr uint32) (uint32, error) {
	message, err := mm.ReadRegion(msgPtr, maxMessageLength)
	if err != nil {
		return 0, err
	}
	sig, err := mm.ReadRegion(sigPtr, maxSignatureLength)
	if err != nil {
		return 0, err
	}
	pubkey, err := mm.ReadRegion(pubkeyPtr, maxPubkeyLength)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Ed25519Verify, 0, "ed25519_verify"); err != nil {
		return 0, err
	}
	return verifyEd25519(message, sig, pubkey), nil
}

func (e *Environment) ed25519BatchVerify(mm *memory.Manager, msgsPtr, sigsPtr, pubkeysPtr uint32) (uint32, error) {
	messages, err := e.readSectionedList(mm, msgsPtr)
	if err != nil {
		return 0, err
	}
	signatures, err := e.readSectionedList(mm, sigsPtr)
	if err != nil {
		return 0, err
	}
	pubkeys, err := e.readSectionedList(mm, pubkeysPtr)
	if err != nil {
		return 0, err
	}
	cost := e.Gas.Costs().Ed25519Verify
	if n := len(signatures); n > 1 {
		cost += e.Gas.Costs().Ed25519BatchVerify * uint64(n-1)
	}
	if err := e.Gas.ConsumeOperation(cost, 0, "ed25519_batch_verify"); err != nil {
		return 0, err
	}
	return verifyEd25519Batch(messages, signatures, pubkeys), nil
}

func (e *Environment) blsAggregateG1(mm *memory.Manager, g1sPtr, outPtr uint32) (uint32, error) {
	points, err := mm.ReadRegion(g1sPtr, maxListLength)
	if err != nil {
		return 0, err
	}
	cost := e.Gas.Costs().Bls12381AggregateG1.TotalCost(uint64(len(points) / g1PointLen))
	if err := e.Gas.ConsumeOperation(cost, 0, "bls12_381_aggregate_g1"); err != nil {
		return 0, err
	}
	sum, code := aggregateG1(points)
	if code != codeValid {
		return code, nil
	}
	if err := mm.WriteToRegion(outPtr, sum); err != nil {
		return 0, err
	}
	return codeValid, nil
}

func (e *Environment) blsAggregateG2(mm *memory.Manager, g2sPtr, outPtr uint32) (uint32, error) {
	points, err := mm.ReadRegion(g2sPtr, maxListLength)
	if err != nil {
		return 0, err
	}
	cost := e.Gas.Costs().Bls12381AggregateG2.TotalCost(uint64(len(points) / g2PointLen))
	if err := e.Gas.ConsumeOperation(cost, 0, "bls12_381_aggregate_g2"); err != nil {
		return 0, err
	}
	sum, code := aggregateG2(points)
	if code != codeValid {
		return code, nil
	}
	if err := mm.WriteToRegion(outPtr, sum); err != nil {
		return 0, err
	}
	return codeValid, nil
}

func (e *Environment) blsPairingEquality(mm *memory.Manager, psPtr, qsPtr, rPtr, sPtr uint32) (uint32, error) {
	ps, err := mm.ReadRegion(psPtr, maxListLength)
	if err != nil {
		return 0, err
	}
	qs, err := mm.ReadRegion(qsPtr, maxListLength)
	if err != nil {
		return 0, err
	}
	r, err := mm.ReadRegion(rPtr, maxPubkeyLength)
	if err != nil {
		return 0, err
	}
	s, err := mm.ReadRegion(sPtr, maxSignatureLength)
	if err != nil {
		return 0, err
	}
	cost := e.Gas.Costs().Bls12381Pairing.TotalCost(uint64(len(ps) / g1PointLen))
	if err := e.Gas.ConsumeOperation(cost, 0, "bls12_381_pairing_equality"); err != nil {
		return 0, err
	}
	return pairingEquality(ps, qs, r, s), nil
}

func (e *Environment) blsHashToG1(mm *memory.Manager, hashFunction, msgPtr, dstPtr, outPtr uint32) (uint32, error) {
	msg, dst, err := e.readHashToCurveArgs(mm, msgPtr, dstPtr)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Bls12381HashToG1.TotalCost(1), 0, "bls12_381_hash_to_g1"); err != nil {
		return 0, err
	}
	point, code := hashToG1(hashFunction, msg, dst)
	if code != codeValid {
		return code, nil
	}
	if err := mm.WriteToRegion(outPtr, point); err != nil {
		return 0, err
	}
	return codeValid, nil
}

func (e *Environment) blsHashToG2(mm *memory.Manager, hashFunction, msgPtr, dstPtr, outPtr uint32) (uint32, error) {
	msg, dst, err := e.readHashToCurveArgs(mm, msgPtr, dstPtr)
	if err != nil {
		return 0, err
	}
	if err := e.Gas.ConsumeOperation(e.Gas.Costs().Bls12381HashToG2.TotalCost(1), 0, "bls12_381_hash_to_g2"); err != nil {
		return 0, err
	}
	point, code := hashToG2(hashFunction, msg, dst)
	if code != codeValid {
		return code, nil
	}
	if err := mm.WriteToRegion(outPtr, point); err != nil {
		return 0, err
	}
	return codeValid, nil
}

func (e *Environment) readVerifyArgs(mm *memory.Manager, hashPtr, sigPtr, pubkeyPtr uint32) (hash, sig, pubkey []byte, err error) {
	hash, err = mm.ReadRegion(hashPtr, maxHashLength)
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err = mm.ReadRegion(sigPtr, maxSignatureLength)
	if err != nil {
		return nil, nil, nil, err
	}
	pubkey, err = mm.ReadRegion(pubkeyPtr, maxPubkeyLength)
	if err != nil {
		return nil, nil, nil, err
	}
	return hash, sig, pubkey, nil
}

func (e *Environment) readSectionedList(mm *memory.Manager, ptr uint32) ([][]byte, error) {
	raw, err := mm.ReadRegion(ptr, maxListLength)
	if err != nil {
		return nil, err
	}
	return decodeSections(raw)
}

func (e *Environment) readHashToCurveArgs(mm *memory.Manager, msgPtr, dstPtr uint32) (msg, dst []byte, err error) {
	msg, err = mm.ReadRegion(msgPtr, maxMessageLength)
	if err != nil {
		return nil, nil, err
	}
	dst, err = mm.ReadRegion(dstPtr, maxDstLength)
	if err != nil {
		return nil, nil, err
	}
	return msg, dst, nil
}

// verifySecp256k1 checks an ECDSA signature over the secp256k1 curve. The
// signature is the 64 byte r||s form; high-s signatures are normalized
// before the check. The key may be compressed or uncompressed.
func verifySecp256k1(hash, sig, pubkey []byte) uint32 {
	if len(hash) != 32 {
		return codeInvalidHashFormat
	}
	if len(sig) != 64 {
		return codeInvalidSignatureFormat
	}
	if len(pubkey) != 33 && len(pubkey) != 65 {
		return codeInvalidPubkeyFormat
	}
	pk, err := secp256k1.ParsePubKey(pubkey)
	if err != nil {
		return codeInvalidPubkeyFormat
	}
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return codeGenericErr
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return codeGenericErr
	}
	if r.IsZero() || s.IsZero() {
		return codeGenericErr
	}
	if s.IsOverHalfOrder() {
		s.Negate()
	}
	if secpecdsa.NewSignature(&r, &s).Verify(hash, pk) {
		return codeValid
	}
	return codeInvalid
}

// recoverSecp256k1 recovers the uncompressed public key that produced the
// signature. The recovery parameter selects the parity of the nonce point.
func recoverSecp256k1(hash, sig []byte, param uint32) ([]byte, uint32) {
	if len(hash) != 32 {
		return nil, codeInvalidHashFormat
	}
	if len(sig) != 64 {
		return nil, codeInvalidSignatureFormat
	}
	if param > 1 {
		return nil, codeInvalidRecoveryParam
	}
	// RecoverCompact wants the header byte in front: 27 + recovery id,
	// plus 4 if the keys were compressed.
	compact := make([]byte, 65)
	compact[0] = 27 + byte(param)
	copy(compact[1:], sig)
	pubkey, _, err := secpecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, codeGenericErr
	}
	return pubkey.SerializeUncompressed(), codeValid
}

// verifySecp256r1 checks an ECDSA signature over NIST P-256.
func verifySecp256r1(hash, sig, pubkey []byte) uint32 {
	if len(hash) != 32 {
		return codeInvalidHashFormat
	}
	if len(sig) != 64 {
		return codeInvalidSignatureFormat
	}
	pk, ok := parseP256Pubkey(pubkey)
	if !ok {
		return codeInvalidPubkeyFormat
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if ecdsa.Verify(pk, hash, r, s) {
		return codeValid
	}
	return codeInvalid
}

// recoverSecp256r1 recovers the uncompressed P-256 public key that produced
// the signature. The recovery parameter selects the parity of the nonce
// point's y coordinate.
func recoverSecp256r1(hash, sig []byte, param uint32) ([]byte, uint32) {
	if len(hash) != 32 {
		return nil, codeInvalidHashFormat
	}
	if len(sig) != 64 {
		return nil, codeInvalidSignatureFormat
	}
	if param > 1 {
		return nil, codeInvalidRecoveryParam
	}
	curve := elliptic.P256()
	params := curve.Params()
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	if r.Sign() == 0 || r.Cmp(params.N) >= 0 || s.Sign() == 0 || s.Cmp(params.N) >= 0 {
		return nil, codeGenericErr
	}

	// The nonce point's x coordinate is r. Solve y² = x³ - 3x + b for y
	// and pick the root matching the requested parity.
	x := r
	y2 := new(big.Int).Mul(x, x)
	y2.Mul(y2, x)
	y2.Sub(y2, new(big.Int).Mul(x, big.NewInt(3)))
	y2.Add(y2, params.B)
	y2.Mod(y2, params.P)
	y := new(big.Int).ModSqrt(y2, params.P)
	if y == nil {
		return nil, codeGenericErr
	}
	if y.Bit(0) != uint(param) {
		y.Sub(params.P, y)
	}

	pub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	if !ecdsa.Verify(pub, hash, r, s) {
		return nil, codeGenericErr
	}
	return elliptic.Marshal(curve, pub.X, pub.Y), codeValid
}

func parseP256Pubkey(pubkey []byte) (*ecdsa.PublicKey, bool) {
	curve := elliptic.P256()
	var x, y *big.Int
	switch len(pubkey) {
	case 33:
		x, y = elliptic.UnmarshalCompressed(curve, pubkey)
	case 65:
		x, y = elliptic.Unmarshal(curve, pubkey)
	default:
		return nil, false
	}
	if x == nil {
		return nil, false
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, true
}

func verifyEd25519(message, sig, pubkey []byte) uint32 {
	if len(sig) != ed25519.SignatureSize {
		return codeInvalidSignatureFormat
	}
	if len(pubkey) != ed25519.PublicKeySize {
		return codeInvalidPubkeyFormat
	}
	if ed25519.Verify(ed25519.PublicKey(pubkey), message, sig) {
		return codeValid
	}
	return codeInvalid
}

// verifyEd25519Batch checks a batch of signatures. Besides the pairwise
// form it accepts one message against many signature/key pairs and one key
// against many message/signature pairs. An empty batch is valid.
func verifyEd25519Batch(messages, signatures, pubkeys [][]byte) uint32 {
	pairwise := len(messages) == len(signatures) && len(signatures) == len(pubkeys)
	oneMessage := len(messages) == 1 && len(signatures) == len(pubkeys)
	oneKey := len(pubkeys) == 1 && len(messages) == len(signatures)
	if !pairwise && !oneMessage && !oneKey {
		return codeBatchErr
	}
	for i := 0; i < len(signatures); i++ {
		message := messages[0]
		if len(messages) > 1 {
			message = messages[i]
		}
		pubkey := pubkeys[0]
		if len(pubkeys) > 1 {
			pubkey = pubkeys[i]
		}
		if code := verifyEd25519(message, signatures[i], pubkey); code != codeValid {
			return code
		}
	}
	return codeValid
}

// aggregateG1 sums a concatenation of compressed G1 points.
func aggregateG1(points []byte) ([]byte, uint32) {
	if len(points) == 0 || len(points)%g1PointLen != 0 {
		return nil, codeInvalidPoint
	}
	g1 := bls12381.NewG1()
	sum := g1.Zero()
	for i := 0; i < len(points); i += g1PointLen {
		point, err := g1.FromCompressed(points[i : i+g1PointLen])
		if err != nil {
			return nil, codeInvalidPoint
		}
		g1.Add(sum, sum, point)
	}
	return g1.ToCompressed(sum), codeValid
}

// aggregateG2 sums a concatenation of compressed G2 points.
func aggregateG2(points []byte) ([]byte, uint32) {
	if len(points) == 0 || len(points)%g2PointLen != 0 {
		return nil, codeInvalidPoint
	}
	g2 := bls12381.NewG2()
	sum := g2.Zero()
	for i := 0; i < len(points); i += g2PointLen {
		point, err := g2.FromCompressed(points[i : i+g2PointLen])
		if err != nil {
			return nil, codeInvalidPoint
		}
		g2.Add(sum, sum, point)
	}
	return g2.ToCompressed(sum), codeValid
}

// pairingEquality reports whether e(p1,q1)·…·e(pn,qn) equals e(r,s).
func pairingEquality(ps, qs, r, s []byte) uint32 {
	if len(ps) == 0 || len(ps)%g1PointLen != 0 || len(qs)%g2PointLen != 0 {
		return codeInvalidPoint
	}
	n := len(ps) / g1PointLen
	if len(qs)/g2PointLen != n {
		return codeInvalidPoint
	}
	if len(r) != g1PointLen || len(s) != g2PointLen {
		return codeInvalidPoint
	}

	g1 := bls12381.NewG1()
	g2 := bls12381.NewG2()
	engine := bls12381.NewEngine()
	for i := 0; i < n; i++ {
		p, err := g1.FromCompressed(ps[i*g1PointLen : (i+1)*g1PointLen])
		if err != nil {
			return codeInvalidPoint
		}
		q, err := g2.FromCompressed(qs[i*g2PointLen : (i+1)*g2PointLen])
		if err != nil {
			return codeInvalidPoint
		}
		engine.AddPair(p, q)
	}
	rp, err := g1.FromCompressed(r)
	if err != nil {
		return codeInvalidPoint
	}
	sp, err := g2.FromCompressed(s)
	if err != nil {
		return codeInvalidPoint
	}
	// The product of the left pairings times the inverse of e(r,s) must be
	// the identity.
	engine.AddPairInv(rp, sp)
	if engine.Check() {
		return codeValid
	}
	return codeInvalid
}

// hashToG1 hashes a message onto G1 with the given domain separation tag.
func hashToG1(hashFunction uint32, msg, dst []byte) ([]byte, uint32) {
	if hashFunction != hashFunctionSha256 {
		return nil, codeUnknownHashFunction
	}
	g1 := bls12381.NewG1()
	point, err := g1.HashToCurve(msg, dst)
	if err != nil {
		return nil, codeGenericErr
	}
	return g1.ToCompressed(point), codeValid
}

// hashToG2 hashes a message onto G2 with the given domain separation tag.
func hashToG2(hashFunction uint32, msg, dst []byte) ([]byte, uint32) {
	if hashFunction != hashFunctionSha256 {
		return nil, codeUnknownHashFunction
	}
	g2 := bls12381.NewG2()
	point, err := g2.HashToCurve(msg, dst)
	if err != nil {
		return nil, codeGenericErr
	}
	return g2.ToCompressed(point), codeValid
}

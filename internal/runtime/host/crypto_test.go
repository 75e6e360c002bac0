package host

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	bls12381 "github.com/kilic/bls12-381"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/wasmvm/v2/internal/runtime/gas"
	"github.com/CosmWasm/wasmvm/v2/types"
)

// signK1 signs a digest of msg with a fresh secp256k1 key and returns the
// digest, the 64 byte signature, the recovery parameter and the key.
func signK1(t *testing.T, msg []byte) (digest, sig []byte, param uint32, priv *secp256k1.PrivateKey) {
	t.Helper()
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	d := sha256.Sum256(msg)
	compact := secpecdsa.SignCompact(priv, d[:], false)
	return d[:], compact[1:], uint32(compact[0] - 27), priv
}

func TestVerifySecp256k1(t *testing.T) {
	digest, sig, _, priv := signK1(t, []byte("execute msg"))

	assert.Equal(t, codeValid, verifySecp256k1(digest, sig, priv.PubKey().SerializeCompressed()))
	assert.Equal(t, codeValid, verifySecp256k1(digest, sig, priv.PubKey().SerializeUncompressed()))

	other := sha256.Sum256([]byte("a different msg"))
	assert.Equal(t, codeInvalid, verifySecp256k1(other[:], sig, priv.PubKey().SerializeCompressed()))
}

func TestVerifySecp256k1NormalizesHighS(t *testing.T) {
	digest, sig, _, priv := signK1(t, []byte("execute msg"))

	// signing produces low-s signatures, so flipping s exercises the
	// normalization path
	var s secp256k1.ModNScalar
	require.False(t, s.SetByteSlice(sig[32:]))
	s.Negate()
	high := s.Bytes()
	highSig := append(append([]byte{}, sig[:32]...), high[:]...)

	assert.Equal(t, codeValid, verifySecp256k1(digest, highSig, priv.PubKey().SerializeCompressed()))
}

func TestVerifySecp256k1RejectsMalformedInput(t *testing.T) {
	digest, sig, _, priv := signK1(t, []byte("execute msg"))
	pubkey := priv.PubKey().SerializeCompressed()

	assert.Equal(t, codeInvalidHashFormat, verifySecp256k1(digest[:31], sig, pubkey))
	assert.Equal(t, codeInvalidSignatureFormat, verifySecp256k1(digest, sig[:63], sig))
	assert.Equal(t, codeInvalidPubkeyFormat, verifySecp256k1(digest, sig, pubkey[:32]))

	// a well sized but undecodable key
	garbage := bytes.Repeat([]byte{0x05}, 33)
	assert.Equal(t, codeInvalidPubkeyFormat, verifySecp256k1(digest, sig, garbage))

	zeroSig := make([]byte, 64)
	assert.Equal(t, codeGenericErr, verifySecp256k1(digest, zeroSig, pubkey))
}

func TestRecoverSecp256k1(t *testing.T) {
	digest, sig, param, priv := signK1(t, []byte("ibc packet"))
	expected := priv.PubKey().SerializeUncompressed()

	recovered, code := recoverSecp256k1(digest, sig, param)
	require.Equal(t, codeValid, code)
	require.Len(t, recovered, 65)
	assert.Equal(t, expected, recovered)

	// the other parameter must not yield the same key
	recovered, code = recoverSecp256k1(digest, sig, 1-param)
	if code == codeValid {
		assert.NotEqual(t, expected, recovered)
	}
}

func TestRecoverSecp256k1RejectsMalformedInput(t *testing.T) {
	digest, sig, _, _ := signK1(t, []byte("ibc packet"))

	_, code := recoverSecp256k1(digest[:10], sig, 0)
	assert.Equal(t, codeInvalidHashFormat, code)
	_, code = recoverSecp256k1(digest, sig[:40], 0)
	assert.Equal(t, codeInvalidSignatureFormat, code)
	_, code = recoverSecp256k1(digest, sig, 2)
	assert.Equal(t, codeInvalidRecoveryParam, code)
	_, code = recoverSecp256k1(digest, make([]byte, 64), 0)
	assert.Equal(t, codeGenericErr, code)
}

// signR1 signs a digest of msg with a fresh P-256 key.
func signR1(t *testing.T, msg []byte) (digest, sig []byte, priv *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	d := sha256.Sum256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, d[:])
	require.NoError(t, err)
	sig = make([]byte, 64)
	r.FillBytes(sig[:32])
	s.FillBytes(sig[32:])
	return d[:], sig, priv
}

func TestVerifySecp256r1(t *testing.T) {
	digest, sig, priv := signR1(t, []byte("webauthn challenge"))
	compressed := elliptic.MarshalCompressed(elliptic.P256(), priv.X, priv.Y)
	uncompressed := elliptic.Marshal(elliptic.P256(), priv.X, priv.Y)

	assert.Equal(t, codeValid, verifySecp256r1(digest, sig, compressed))
	assert.Equal(t, codeValid, verifySecp256r1(digest, sig, uncompressed))

	other := sha256.Sum256([]byte("another challenge"))
	assert.Equal(t, codeInvalid, verifySecp256r1(other[:], sig, compressed))

	assert.Equal(t, codeInvalidHashFormat, verifySecp256r1(digest[:16], sig, compressed))
	assert.Equal(t, codeInvalidSignatureFormat, verifySecp256r1(digest, sig[:60], compressed))
	assert.Equal(t, codeInvalidPubkeyFormat, verifySecp256r1(digest, sig, compressed[:20]))
	assert.Equal(t, codeInvalidPubkeyFormat, verifySecp256r1(digest, sig, bytes.Repeat([]byte{0x09}, 33)))
}

func TestRecoverSecp256r1(t *testing.T) {
	digest, sig, priv := signR1(t, []byte("webauthn challenge"))
	expected := elliptic.Marshal(elliptic.P256(), priv.X, priv.Y)

	// one of the two parameters recovers the signing key
	var found bool
	for param := uint32(0); param <= 1; param++ {
		recovered, code := recoverSecp256r1(digest, sig, param)
		if code == codeValid && bytes.Equal(recovered, expected) {
			found = true
		}
	}
	assert.True(t, found)

	_, code := recoverSecp256r1(digest, sig, 2)
	assert.Equal(t, codeInvalidRecoveryParam, code)
	_, code = recoverSecp256r1(digest[:8], sig, 0)
	assert.Equal(t, codeInvalidHashFormat, code)
	_, code = recoverSecp256r1(digest, sig[:12], 0)
	assert.Equal(t, codeInvalidSignatureFormat, code)
	_, code = recoverSecp256r1(digest, make([]byte, 64), 0)
	assert.Equal(t, codeGenericErr, code)
}

func TestVerifyEd25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	msg := []byte("channel handshake")
	sig := ed25519.Sign(priv, msg)

	assert.Equal(t, codeValid, verifyEd25519(msg, sig, pub))
	assert.Equal(t, codeInvalid, verifyEd25519([]byte("other"), sig, pub))
	assert.Equal(t, codeInvalidSignatureFormat, verifyEd25519(msg, sig[:40], pub))
	assert.Equal(t, codeInvalidPubkeyFormat, verifyEd25519(msg, sig, pub[:16]))
}

func TestVerifyEd25519Batch(t *testing.T) {
	sign := func(msg []byte) (ed25519.PublicKey, []byte) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		return pub, ed25519.Sign(priv, msg)
	}

	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	var sigs, keys [][]byte
	for _, msg := range msgs {
		pub, sig := sign(msg)
		keys = append(keys, pub)
		sigs = append(sigs, sig)
	}

	t.Run("pairwise", func(t *testing.T) {
		assert.Equal(t, codeValid, verifyEd25519Batch(msgs, sigs, keys))
	})

	t.Run("one message many keys", func(t *testing.T) {
		msg := []byte("shared payload")
		var bSigs, bKeys [][]byte
		for i := 0; i < 3; i++ {
			pub, sig := sign(msg)
			bKeys = append(bKeys, pub)
			bSigs = append(bSigs, sig)
		}
		assert.Equal(t, codeValid, verifyEd25519Batch([][]byte{msg}, bSigs, bKeys))
	})

	t.Run("one key many messages", func(t *testing.T) {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		bMsgs := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
		var bSigs [][]byte
		for _, msg := range bMsgs {
			bSigs = append(bSigs, ed25519.Sign(priv, msg))
		}
		assert.Equal(t, codeValid, verifyEd25519Batch(bMsgs, bSigs, [][]byte{pub}))
	})

	t.Run("empty batch is valid", func(t *testing.T) {
		assert.Equal(t, codeValid, verifyEd25519Batch(nil, nil, nil))
	})

	t.Run("count mismatch", func(t *testing.T) {
		assert.Equal(t, codeBatchErr, verifyEd25519Batch(msgs[:2], sigs, keys))
	})

	t.Run("one forged signature fails the batch", func(t *testing.T) {
		forged := append([][]byte{}, sigs...)
		forged[1] = sigs[0]
		assert.Equal(t, codeInvalid, verifyEd25519Batch(msgs, forged, keys))
	})
}

func TestAggregateG1(t *testing.T) {
	g1 := bls12381.NewG1()
	one := g1.ToCompressed(g1.One())

	// a single point aggregates to itself
	sum, code := aggregateG1(one)
	require.Equal(t, codeValid, code)
	assert.Equal(t, one, sum)

	// generator plus generator is the doubled generator
	double := g1.New()
	g1.Add(double, g1.One(), g1.One())
	sum, code = aggregateG1(append(append([]byte{}, one...), one...))
	require.Equal(t, codeValid, code)
	assert.Equal(t, g1.ToCompressed(double), sum)

	_, code = aggregateG1(nil)
	assert.Equal(t, codeInvalidPoint, code)
	_, code = aggregateG1(one[:47])
	assert.Equal(t, codeInvalidPoint, code)
	_, code = aggregateG1(bytes.Repeat([]byte{0xff}, g1PointLen))
	assert.Equal(t, codeInvalidPoint, code)
}

func TestAggregateG2(t *testing.T) {
	g2 := bls12381.NewG2()
	one := g2.ToCompressed(g2.One())

	double := g2.New()
	g2.Add(double, g2.One(), g2.One())
	sum, code := aggregateG2(append(append([]byte{}, one...), one...))
	require.Equal(t, codeValid, code)
	assert.Equal(t, g2.ToCompressed(double), sum)

	_, code = aggregateG2(one[:95])
	assert.Equal(t, codeInvalidPoint, code)
}

func TestPairingEquality(t *testing.T) {
	g1 := bls12381.NewG1()
	g2 := bls12381.NewG2()
	p := g1.ToCompressed(g1.One())
	q := g2.ToCompressed(g2.One())
	twoP := g1.New()
	g1.Add(twoP, g1.One(), g1.One())

	// e(P, Q) == e(P, Q)
	assert.Equal(t, codeValid, pairingEquality(p, q, p, q))

	// e(2P, Q) != e(P, Q)
	assert.Equal(t, codeInvalid, pairingEquality(g1.ToCompressed(twoP), q, p, q))

	// e(P, Q) * e(P, Q) == e(2P, Q)
	ps := append(append([]byte{}, p...), p...)
	qs := append(append([]byte{}, q...), q...)
	assert.Equal(t, codeValid, pairingEquality(ps, qs, g1.ToCompressed(twoP), q))

	// mismatched list lengths
	assert.Equal(t, codeInvalidPoint, pairingEquality(ps, q, p, q))
	assert.Equal(t, codeInvalidPoint, pairingEquality(nil, nil, p, q))
	assert.Equal(t, codeInvalidPoint, pairingEquality(p, q, p[:40], q))
}

func TestHashToCurve(t *testing.T) {
	msg := []byte("proof of possession")
	dst := []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_POP_")

	point, code := hashToG1(hashFunctionSha256, msg, dst)
	require.Equal(t, codeValid, code)
	require.Len(t, point, g1PointLen)

	// deterministic and on the curve
	again, code := hashToG1(hashFunctionSha256, msg, dst)
	require.Equal(t, codeValid, code)
	assert.Equal(t, point, again)
	g1 := bls12381.NewG1()
	_, err := g1.FromCompressed(point)
	require.NoError(t, err)

	// a different tag lands elsewhere
	other, code := hashToG1(hashFunctionSha256, msg, []byte("another-dst"))
	require.Equal(t, codeValid, code)
	assert.NotEqual(t, point, other)

	pointG2, code := hashToG2(hashFunctionSha256, msg, dst)
	require.Equal(t, codeValid, code)
	require.Len(t, pointG2, g2PointLen)
	g2 := bls12381.NewG2()
	_, err = g2.FromCompressed(pointG2)
	require.NoError(t, err)

	_, code = hashToG1(3, msg, dst)
	assert.Equal(t, codeUnknownHashFunction, code)
	_, code = hashToG2(3, msg, dst)
	assert.Equal(t, codeUnknownHashFunction, code)
}

func TestSecp256k1VerifyHost(t *testing.T) {
	env, mm, _, gs := testHost(t)
	digest, sig, _, priv := signK1(t, []byte("execute msg"))

	hashPtr := writeArg(t, mm, digest)
	sigPtr := writeArg(t, mm, sig)
	pubkeyPtr := writeArg(t, mm, priv.PubKey().SerializeCompressed())
	used := gs.Report().UsedInternally

	code, err := env.secp256k1Verify(mm, hashPtr, sigPtr, pubkeyPtr)
	require.NoError(t, err)
	assert.Equal(t, codeValid, code)

	// three argument copies plus the verification price
	want := used + (32+64+33)*gas.MemoryCopyCost + gas.DefaultCosts().Secp256k1Verify
	assert.Equal(t, want, gs.Report().UsedInternally)
}

func TestSecp256k1VerifyHostOutOfGas(t *testing.T) {
	env, mm, _, _ := testHost(t)
	digest, sig, _, priv := signK1(t, []byte("execute msg"))

	hashPtr := writeArg(t, mm, digest)
	sigPtr := writeArg(t, mm, sig)
	pubkeyPtr := writeArg(t, mm, priv.PubKey().SerializeCompressed())

	env.Gas = gas.NewState(0, nil, gas.DefaultCosts())
	_, err := env.secp256k1Verify(mm, hashPtr, sigPtr, pubkeyPtr)
	var oog types.OutOfGasError
	require.ErrorAs(t, err, &oog)
}

func TestSecp256k1RecoverPubkeyHost(t *testing.T) {
	env, mm, _, _ := testHost(t)
	ctx := context.Background()
	digest, sig, param, priv := signK1(t, []byte("ibc packet"))

	hashPtr := writeArg(t, mm, digest)
	sigPtr := writeArg(t, mm, sig)

	packed, err := env.secp256k1RecoverPubkey(ctx, mm, hashPtr, sigPtr, param)
	require.NoError(t, err)
	require.Zero(t, packed>>32)

	recovered, err := mm.ReadRegion(uint32(packed), maxPubkeyLength)
	require.NoError(t, err)
	assert.Equal(t, priv.PubKey().SerializeUncompressed(), recovered)

	// errors come back in the upper half, with a null pointer below
	packed, err = env.secp256k1RecoverPubkey(ctx, mm, hashPtr, sigPtr, 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(codeInvalidRecoveryParam), packed>>32)
	assert.Zero(t, uint32(packed))
}

func TestEd25519BatchVerifyHost(t *testing.T) {
	env, mm, _, gs := testHost(t)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	msgs := [][]byte{[]byte("m1"), []byte("m2")}
	sigs := [][]byte{ed25519.Sign(priv, msgs[0]), ed25519.Sign(priv, msgs[1])}

	msgsPtr := writeArg(t, mm, encodeSections(msgs...))
	sigsPtr := writeArg(t, mm, encodeSections(sigs...))
	keysPtr := writeArg(t, mm, encodeSections(pub))
	used := gs.Report().UsedInternally

	code, err := env.ed25519BatchVerify(mm, msgsPtr, sigsPtr, keysPtr)
	require.NoError(t, err)
	assert.Equal(t, codeValid, code)

	// the second batch item is charged at the discounted rate
	charged := gs.Report().UsedInternally - used
	costs := gas.DefaultCosts()
	assert.GreaterOrEqual(t, charged, costs.Ed25519Verify+costs.Ed25519BatchVerify)
}

func TestBlsAggregateG1Host(t *testing.T) {
	env, mm, alloc, gs := testHost(t)
	ctx := context.Background()

	g1 := bls12381.NewG1()
	one := g1.ToCompressed(g1.One())
	double := g1.New()
	g1.Add(double, g1.One(), g1.One())

	listPtr := writeArg(t, mm, append(append([]byte{}, one...), one...))
	outPtr, err := alloc.Allocate(ctx, g1PointLen)
	require.NoError(t, err)
	used := gs.Report().UsedInternally

	code, err := env.blsAggregateG1(mm, listPtr, outPtr)
	require.NoError(t, err)
	assert.Equal(t, codeValid, code)

	sum, err := mm.ReadRegion(outPtr, g1PointLen)
	require.NoError(t, err)
	assert.Equal(t, g1.ToCompressed(double), sum)

	charged := gs.Report().UsedInternally - used
	assert.GreaterOrEqual(t, charged, gas.DefaultCosts().Bls12381AggregateG1.TotalCost(2))
}

package ecc

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Secp256k1 represents the secp256k1 elliptic curve parameters used by Bitcoin.
type Secp256k1 struct {
	P  *big.Int // Prime field modulus
	A  *big.Int // Curve parameter a (0 for secp256k1)
	B  *big.Int // Curve parameter b (7 for secp256k1)
	Gx *big.Int // Generator point x coordinate
	Gy *big.Int // Generator point y coordinate
	N  *big.Int // Order of the generator point
	H  *big.Int // Cofactor (1 for secp256k1)
}

var secp256k1 *Secp256k1

func init() {
	secp256k1 = &Secp256k1{}

	secp256k1.P, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F", 16)

	secp256k1.A = big.NewInt(0)
	secp256k1.B = big.NewInt(7)

	secp256k1.Gx, _ = new(big.Int).SetString("79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798", 16)
	secp256k1.Gy, _ = new(big.Int).SetString("483ADA7726A3C4655DA4FBFC0E1108A8FD17B448A68554199C47D08FFB10D4B8", 16)

	secp256k1.N, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

	secp256k1.H = big.NewInt(1)
}

// GetSecp256k1 returns the global secp256k1 curve instance.
func GetSecp256k1() *Secp256k1 {
	return secp256k1
}

// Generator returns the generator point G.
func (curve *Secp256k1) Generator() (*Point, error) {
	return NewPoint(curve.Gx, curve.Gy, curve.A, curve.B)
}

// IsValidPrivateKey checks if a private key is valid (0 < key < n).
func (curve *Secp256k1) IsValidPrivateKey(privateKey *big.Int) bool {
	return privateKey.Cmp(big.NewInt(0)) > 0 && privateKey.Cmp(curve.N) < 0
}

// GeneratePrivateKey generates a cryptographically secure random private key.
func (curve *Secp256k1) GeneratePrivateKey() (*big.Int, error) {
	for {
		privateKeyBytes := make([]byte, 32)
		if _, err := rand.Read(privateKeyBytes); err != nil {
			return nil, fmt.Errorf("failed to generate random bytes: %w", err)
		}

		privateKey := new(big.Int).SetBytes(privateKeyBytes)
		if curve.IsValidPrivateKey(privateKey) {
			return privateKey, nil
		}
	}
}

// PrivateKeyToPublicKey converts a private key to its corresponding public key point.
func (curve *Secp256k1) PrivateKeyToPublicKey(privateKey *big.Int) (*Point, error) {
	if !curve.IsValidPrivateKey(privateKey) {
		return nil, fmt.Errorf("invalid private key")
	}

	generator, err := curve.Generator()
	if err != nil {
		return nil, fmt.Errorf("failed to get generator point: %w", err)
	}

	publicKey, err := generator.ScalarMult(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate public key: %w", err)
	}

	return publicKey, nil
}

// GenerateKeyPair generates a new private/public key pair. Kept for address
// derivation and test fixtures only — production signing never routes a
// private key through this package (chainadapter.SignerClient owns custody).
func (curve *Secp256k1) GenerateKeyPair() (*big.Int, *Point, error) {
	privateKey, err := curve.GeneratePrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	publicKey, err := curve.PrivateKeyToPublicKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to calculate public key: %w", err)
	}

	return privateKey, publicKey, nil
}

// ModAdd performs modular addition (a + b) mod p.
func (curve *Secp256k1) ModAdd(a, b *big.Int) *big.Int {
	result := new(big.Int).Add(a, b)
	return result.Mod(result, curve.P)
}

// ModSub performs modular subtraction (a - b) mod p.
func (curve *Secp256k1) ModSub(a, b *big.Int) *big.Int {
	result := new(big.Int).Sub(a, b)
	return result.Mod(result, curve.P)
}

// ModMul performs modular multiplication (a * b) mod p.
func (curve *Secp256k1) ModMul(a, b *big.Int) *big.Int {
	result := new(big.Int).Mul(a, b)
	return result.Mod(result, curve.P)
}

// ModSquare performs modular squaring (a^2) mod p.
func (curve *Secp256k1) ModSquare(a *big.Int) *big.Int {
	result := new(big.Int).Mul(a, a)
	return result.Mod(result, curve.P)
}

// ModSqrt calculates the square root of a modulo p. secp256k1's p ≡ 3 (mod 4),
// so sqrt(a) = a^((p+1)/4) mod p.
func (curve *Secp256k1) ModSqrt(a *big.Int) *big.Int {
	exp := new(big.Int).Add(curve.P, big.NewInt(1))
	exp.Div(exp, big.NewInt(4))

	result := new(big.Int).Exp(a, exp, curve.P)

	if curve.ModSquare(result).Cmp(a) == 0 {
		return result
	}

	return nil
}

// CompressPoint compresses a public key point to 33 bytes.
func (curve *Secp256k1) CompressPoint(point *Point) []byte {
	if point.IsInfinity() {
		return nil
	}

	compressed := make([]byte, 33)

	if new(big.Int).And(point.Y, big.NewInt(1)).Cmp(big.NewInt(0)) == 0 {
		compressed[0] = 0x02
	} else {
		compressed[0] = 0x03
	}

	xBytes := point.X.Bytes()
	copy(compressed[33-len(xBytes):], xBytes)

	return compressed
}

// DecompressPoint decompresses a 33-byte compressed public key.
func (curve *Secp256k1) DecompressPoint(compressed []byte) (*Point, error) {
	if len(compressed) != 33 {
		return nil, fmt.Errorf("compressed point must be 33 bytes")
	}

	prefix := compressed[0]
	if prefix != 0x02 && prefix != 0x03 {
		return nil, fmt.Errorf("invalid compression prefix: %02x", prefix)
	}

	x := new(big.Int).SetBytes(compressed[1:])

	ySquared := curve.ModSquare(x)
	ySquared = curve.ModMul(ySquared, x)
	ySquared = curve.ModAdd(ySquared, curve.B)

	y := curve.ModSqrt(ySquared)
	if y == nil {
		return nil, fmt.Errorf("point is not on curve")
	}

	yParity := new(big.Int).And(y, big.NewInt(1)).Uint64()
	expectedParity := uint64(prefix - 0x02)

	if yParity != expectedParity {
		y = curve.ModSub(curve.P, y)
	}

	return NewPoint(x, y, curve.A, curve.B)
}

// String returns a string representation of the curve parameters.
func (curve *Secp256k1) String() string {
	return fmt.Sprintf("secp256k1: y^2 = x^3 + %s (mod %s)", curve.B.String(), curve.P.String())
}

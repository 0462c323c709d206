package webbotauth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"
)

// Signature algorithms from the RFC 9421 registry.
const (
	AlgEd25519         = "ed25519"
	AlgECDSAP256SHA256 = "ecdsa-p256-sha256"
	AlgRSAPSSSHA512    = "rsa-pss-sha512"
	AlgRSAv15SHA256    = "rsa-v1_5-sha256"
)

// algForKey picks the algorithm implied by a key when the signer did not
// name one.
func algForKey(key crypto.PublicKey) (string, error) {
	switch k := key.(type) {
	case ed25519.PublicKey:
		return AlgEd25519, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("%w: ECDSA curve %s", ErrUnsupportedAlg, k.Curve.Params().Name)
		}
		return AlgECDSAP256SHA256, nil
	case *rsa.PublicKey:
		return AlgRSAPSSSHA512, nil
	default:
		return "", fmt.Errorf("%w: key type %T", ErrUnsupportedAlg, key)
	}
}

// verifySignature checks sig over base with key using alg. An empty alg is
// derived from the key type.
func verifySignature(alg string, key crypto.PublicKey, base, sig []byte) error {
	if alg == "" {
		var err error
		alg, err = algForKey(key)
		if err != nil {
			return err
		}
	}

	switch alg {
	case AlgEd25519:
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s needs an Ed25519 key, got %T", ErrUnsupportedAlg, alg, key)
		}
		if !ed25519.Verify(pub, base, sig) {
			return ErrSignatureMismatch
		}

	case AlgECDSAP256SHA256:
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok || pub.Curve != elliptic.P256() {
			return fmt.Errorf("%w: %s needs a P-256 key, got %T", ErrUnsupportedAlg, alg, key)
		}
		if len(sig) != 64 {
			return fmt.Errorf("%w: ECDSA signature is %d bytes, wanted 64", ErrSignatureMismatch, len(sig))
		}
		digest := sha256.Sum256(base)
		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:])
		if !ecdsa.Verify(pub, digest[:], r, s) {
			return ErrSignatureMismatch
		}

	case AlgRSAPSSSHA512:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s needs an RSA key, got %T", ErrUnsupportedAlg, alg, key)
		}
		digest := sha512.Sum512(base)
		if err := rsa.VerifyPSS(pub, crypto.SHA512, digest[:], sig, &rsa.PSSOptions{SaltLength: 64}); err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
		}

	case AlgRSAv15SHA256:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("%w: %s needs an RSA key, got %T", ErrUnsupportedAlg, alg, key)
		}
		digest := sha256.Sum256(base)
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig); err != nil {
			return fmt.Errorf("%w: %w", ErrSignatureMismatch, err)
		}

	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}

	return nil
}

// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"go.uber.org/zap"

	"github.com/luxfi/afhe/backend"
)

// Key is key material bound to the parameter set that produced it.
type Key struct {
	typ KeyType
	obj backend.Object
	id  ParameterID
}

// Type returns the key type.
func (k *Key) Type() KeyType { return k.typ }

// Level returns the chain level the key lives at.
func (k *Key) Level() int { return k.obj.Level() }

// ParameterID returns the id of the parameters the key belongs to.
func (k *Key) ParameterID() ParameterID { return k.id }

func (c *Context) newKey(typ KeyType, obj backend.Object) *Key {
	return &Key{typ: typ, obj: obj, id: c.ParameterID(obj.Level())}
}

// GenerateKeys creates a fresh secret and public key pair. Evaluation keys
// from an earlier pair are dropped.
func (c *Context) GenerateKeys() error {
	if err := c.ready(); err != nil {
		return err
	}
	sk, pk, err := c.bctx.GenKeyPair()
	if err != nil {
		return wrapError(KindGenericBackendFailure, err, "generate key pair")
	}
	c.setPair(c.newKey(KeySecret, sk), c.newKey(KeyPublic, pk))
	c.log.Debug("key pair generated")
	return nil
}

// GenerateKeysFromSecret imports sk and derives a matching public key, so that
// several parties can share one secret.
func (c *Context) GenerateKeysFromSecret(sk *Key) error {
	if err := c.ready(); err != nil {
		return err
	}
	if sk == nil || sk.typ != KeySecret {
		return newError(KindInvalidArgument, "a secret key is required")
	}
	if err := c.checkID(sk.id, sk.Level()); err != nil {
		return err
	}
	pk, err := c.bctx.GenPublicKey(sk.obj)
	if err != nil {
		return wrapError(KindGenericBackendFailure, err, "derive public key")
	}
	c.setPair(sk, c.newKey(KeyPublic, pk))
	c.log.Debug("public key derived from imported secret key")
	return nil
}

func (c *Context) setPair(sk, pk *Key) {
	c.sk, c.pk = sk, pk
	c.rlk, c.gks = nil, nil
	c.eval = nil
	c.state = StateKeyed
}

// GenerateRelinKeys creates relinearization keys for the current secret key.
func (c *Context) GenerateRelinKeys() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.sk == nil {
		return errNoKey("relinearization key generation")
	}
	rlk, err := c.bctx.GenRelinKey(c.sk.obj)
	if err != nil {
		return wrapError(KindGenericBackendFailure, err, "generate relinearization key")
	}
	c.rlk = c.newKey(KeyRelin, rlk)
	c.eval = nil
	c.state = StateFullyKeyed
	c.log.Debug("relinearization key generated")
	return nil
}

// GenerateGaloisKeys creates rotation keys for every power-of-two step.
func (c *Context) GenerateGaloisKeys() error {
	if err := c.ready(); err != nil {
		return err
	}
	if c.sk == nil {
		return errNoKey("galois key generation")
	}
	gks, err := c.bctx.GenGaloisKeys(c.sk.obj)
	if err != nil {
		return wrapError(KindGenericBackendFailure, err, "generate galois keys")
	}
	c.gks = c.newKey(KeyGalois, gks)
	c.eval = nil
	c.log.Debug("galois keys generated", zap.Int("size", gks.BinarySize()))
	return nil
}

// SetEvaluationKey installs an imported relinearization or galois key, as
// received from the party holding the secret key.
func (c *Context) SetEvaluationKey(k *Key) error {
	if err := c.ready(); err != nil {
		return err
	}
	if k == nil {
		return newError(KindInvalidArgument, "key is nil")
	}
	if err := c.checkID(k.id, k.Level()); err != nil {
		return err
	}
	switch k.typ {
	case KeyRelin:
		c.rlk = k
	case KeyGalois:
		c.gks = k
	case KeyPublic:
		c.pk = k
	default:
		return newError(KindUnsupportedKeyType, "cannot install a %s key", k.typ)
	}
	c.eval = nil
	return nil
}

// SecretKey returns the secret key, or nil.
func (c *Context) SecretKey() *Key { return c.sk }

// PublicKey returns the public key, or nil.
func (c *Context) PublicKey() *Key { return c.pk }

// RelinKeys returns the relinearization key, or nil.
func (c *Context) RelinKeys() *Key { return c.rlk }

// GaloisKeys returns the rotation keys, or nil.
func (c *Context) GaloisKeys() *Key { return c.gks }

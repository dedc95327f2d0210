// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

func (c *Context) requireSlots(what string, scheme ...Scheme) error {
	if err := c.ready(); err != nil {
		return err
	}
	ok := false
	for _, s := range scheme {
		ok = ok || c.params.Scheme == s
	}
	if !ok {
		return newError(KindInvalidArgument, "%s is not available for %s", what, c.params.Scheme)
	}
	if c.bctx.SlotCount() == 0 {
		return newError(KindInvalidArgument, "%s needs a slot encoder; generate the context with plain modulus bits", what)
	}
	return nil
}

// EncodeInt packs values into the slots of a bfv or bgv plaintext.
func (c *Context) EncodeInt(values []int64) (*Plaintext, error) {
	if err := c.requireSlots("integer encoding", SchemeBFV, SchemeBGV); err != nil {
		return nil, err
	}
	if len(values) > c.SlotCount() {
		return nil, newError(KindInvalidArgument, "%d values exceed %d slots", len(values), c.SlotCount())
	}
	obj, err := c.bctx.EncodeInts(values)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "encode integers")
	}
	return c.wrapPlaintext(obj), nil
}

// DecodeInt unpacks every slot of pt.
func (c *Context) DecodeInt(pt *Plaintext) ([]int64, error) {
	if err := c.requireSlots("integer decoding", SchemeBFV, SchemeBGV); err != nil {
		return nil, err
	}
	if err := c.checkPlaintext(pt); err != nil {
		return nil, err
	}
	values, err := c.bctx.DecodeInts(pt.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "decode integers")
	}
	return values, nil
}

// EncodeDouble packs values into the slots of a ckks plaintext at the default
// scale.
func (c *Context) EncodeDouble(values []float64) (*Plaintext, error) {
	if err := c.requireSlots("real encoding", SchemeCKKS); err != nil {
		return nil, err
	}
	if len(values) > c.SlotCount() {
		return nil, newError(KindInvalidArgument, "%d values exceed %d slots", len(values), c.SlotCount())
	}
	obj, err := c.bctx.EncodeFloats(values)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "encode reals")
	}
	return c.wrapPlaintext(obj), nil
}

// EncodeDoubleValue broadcasts v to every slot.
func (c *Context) EncodeDoubleValue(v float64) (*Plaintext, error) {
	if err := c.requireSlots("real encoding", SchemeCKKS); err != nil {
		return nil, err
	}
	values := make([]float64, c.SlotCount())
	for i := range values {
		values[i] = v
	}
	return c.EncodeDouble(values)
}

// DecodeDouble unpacks every slot of pt.
func (c *Context) DecodeDouble(pt *Plaintext) ([]float64, error) {
	if err := c.requireSlots("real decoding", SchemeCKKS); err != nil {
		return nil, err
	}
	if err := c.checkPlaintext(pt); err != nil {
		return nil, err
	}
	values, err := c.bctx.DecodeFloats(pt.obj)
	if err != nil {
		return nil, wrapError(KindGenericBackendFailure, err, "decode reals")
	}
	return values, nil
}

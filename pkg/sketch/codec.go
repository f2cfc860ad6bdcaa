package sketch

import (
	"github.com/Borislavv/wcsketch/pkg/hash"
	"github.com/tinylib/msgp/msgp"
)

// stateFields is the msgpack array length of an encoded State.
const stateFields = 15

// MarshalMsg appends the msgpack encoding of st to b.
func (st *State) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, st.Msgsize())
	o = msgp.AppendArrayHeader(o, stateFields)
	o = msgp.AppendString(o, string(st.Variant))
	o = msgp.AppendInt(o, st.M)
	o = msgp.AppendArrayHeader(o, uint32(len(st.Seeds)))
	for _, v := range st.Seeds {
		o = msgp.AppendUint32(o, v)
	}
	o = msgp.AppendUint8(o, uint8(st.Hash))
	o = msgp.AppendUint8(o, st.AmountBits)
	o = msgp.AppendFloat64(o, st.LogBase)
	o = msgp.AppendUint32(o, st.GSeed)
	o = msgp.AppendUint8(o, st.JaccardBits)
	o = msgp.AppendArrayHeader(o, uint32(len(st.Floats)))
	for _, v := range st.Floats {
		o = msgp.AppendFloat64(o, v)
	}
	o = msgp.AppendArrayHeader(o, uint32(len(st.Floats32)))
	for _, v := range st.Floats32 {
		o = msgp.AppendFloat32(o, v)
	}
	o = msgp.AppendArrayHeader(o, uint32(len(st.Levels)))
	for _, v := range st.Levels {
		o = msgp.AppendInt32(o, v)
	}
	o = msgp.AppendArrayHeader(o, uint32(len(st.Fingerprints)))
	for _, v := range st.Fingerprints {
		o = msgp.AppendUint32(o, v)
	}
	o = msgp.AppendArrayHeader(o, uint32(len(st.Histogram)))
	for _, v := range st.Histogram {
		o = msgp.AppendUint32(o, v)
	}
	o = msgp.AppendInt64(o, st.Offset)
	o = msgp.AppendFloat64(o, st.Cardinality)
	return o, nil
}

// UnmarshalMsg decodes st from the front of b and returns the remainder.
func (st *State) UnmarshalMsg(b []byte) (o []byte, err error) {
	var n uint32
	n, o, err = msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return b, err
	}
	if n != stateFields {
		return b, msgp.ArrayError{Wanted: stateFields, Got: n}
	}
	var variant string
	if variant, o, err = msgp.ReadStringBytes(o); err != nil {
		return b, msgp.WrapError(err, "Variant")
	}
	st.Variant = Variant(variant)
	if st.M, o, err = msgp.ReadIntBytes(o); err != nil {
		return b, msgp.WrapError(err, "M")
	}
	if st.Seeds, o, err = readUint32s(o); err != nil {
		return b, msgp.WrapError(err, "Seeds")
	}
	var family uint8
	if family, o, err = msgp.ReadUint8Bytes(o); err != nil {
		return b, msgp.WrapError(err, "Hash")
	}
	st.Hash = hash.Family(family)
	if st.AmountBits, o, err = msgp.ReadUint8Bytes(o); err != nil {
		return b, msgp.WrapError(err, "AmountBits")
	}
	if st.LogBase, o, err = msgp.ReadFloat64Bytes(o); err != nil {
		return b, msgp.WrapError(err, "LogBase")
	}
	if st.GSeed, o, err = msgp.ReadUint32Bytes(o); err != nil {
		return b, msgp.WrapError(err, "GSeed")
	}
	if st.JaccardBits, o, err = msgp.ReadUint8Bytes(o); err != nil {
		return b, msgp.WrapError(err, "JaccardBits")
	}

	if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
		return b, msgp.WrapError(err, "Floats")
	}
	st.Floats = nil
	if n > 0 {
		if err = fits(n, o); err != nil {
			return b, msgp.WrapError(err, "Floats")
		}
		st.Floats = make([]float64, n)
		for i := range st.Floats {
			if st.Floats[i], o, err = msgp.ReadFloat64Bytes(o); err != nil {
				return b, msgp.WrapError(err, "Floats", i)
			}
		}
	}

	if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
		return b, msgp.WrapError(err, "Floats32")
	}
	st.Floats32 = nil
	if n > 0 {
		if err = fits(n, o); err != nil {
			return b, msgp.WrapError(err, "Floats32")
		}
		st.Floats32 = make([]float32, n)
		for i := range st.Floats32 {
			if st.Floats32[i], o, err = msgp.ReadFloat32Bytes(o); err != nil {
				return b, msgp.WrapError(err, "Floats32", i)
			}
		}
	}

	if n, o, err = msgp.ReadArrayHeaderBytes(o); err != nil {
		return b, msgp.WrapError(err, "Levels")
	}
	st.Levels = nil
	if n > 0 {
		if err = fits(n, o); err != nil {
			return b, msgp.WrapError(err, "Levels")
		}
		st.Levels = make([]int32, n)
		for i := range st.Levels {
			if st.Levels[i], o, err = msgp.ReadInt32Bytes(o); err != nil {
				return b, msgp.WrapError(err, "Levels", i)
			}
		}
	}

	if st.Fingerprints, o, err = readUint32s(o); err != nil {
		return b, msgp.WrapError(err, "Fingerprints")
	}
	if st.Histogram, o, err = readUint32s(o); err != nil {
		return b, msgp.WrapError(err, "Histogram")
	}
	if st.Offset, o, err = msgp.ReadInt64Bytes(o); err != nil {
		return b, msgp.WrapError(err, "Offset")
	}
	if st.Cardinality, o, err = msgp.ReadFloat64Bytes(o); err != nil {
		return b, msgp.WrapError(err, "Cardinality")
	}
	return o, nil
}

// Msgsize is an upper bound on the encoded size of st.
func (st *State) Msgsize() int {
	return msgp.ArrayHeaderSize +
		msgp.StringPrefixSize + len(st.Variant) +
		msgp.IntSize +
		msgp.ArrayHeaderSize + len(st.Seeds)*msgp.Uint32Size +
		3*msgp.Uint8Size + msgp.Float64Size + msgp.Uint32Size +
		msgp.ArrayHeaderSize + len(st.Floats)*msgp.Float64Size +
		msgp.ArrayHeaderSize + len(st.Floats32)*msgp.Float32Size +
		msgp.ArrayHeaderSize + len(st.Levels)*msgp.Int32Size +
		msgp.ArrayHeaderSize + len(st.Fingerprints)*msgp.Uint32Size +
		msgp.ArrayHeaderSize + len(st.Histogram)*msgp.Uint32Size +
		msgp.Int64Size + msgp.Float64Size
}

func readUint32s(b []byte) (vs []uint32, o []byte, err error) {
	var n uint32
	if n, o, err = msgp.ReadArrayHeaderBytes(b); err != nil || n == 0 {
		return nil, o, err
	}
	if err = fits(n, o); err != nil {
		return nil, b, err
	}
	vs = make([]uint32, n)
	for i := range vs {
		if vs[i], o, err = msgp.ReadUint32Bytes(o); err != nil {
			return nil, b, msgp.WrapError(err, i)
		}
	}
	return vs, o, nil
}

// fits rejects an array header announcing more elements than the remaining
// bytes could hold; every element takes at least one byte.
func fits(n uint32, rest []byte) error {
	if uint64(n) > uint64(len(rest)) {
		return msgp.ErrShortBytes
	}
	return nil
}

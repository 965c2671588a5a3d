/*
Package codec is the durable binary encoding of Value: a format version
byte, one tag byte per value, fixed-width lengths and numerics, and an
xxhash64 trailer. Decode(Encode(v)) is bit-for-bit exact for every
representable value, including NaN and infinities.
*/
package codec

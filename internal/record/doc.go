// Package record defines the value model stored by the engine and exchanged
// through the asyncdb adapter.
//
// A Record is a mapping of field name to Value. Values form a sealed set:
// Null, Bool, Int, Float, String, Array and Object. A subset of values can act
// as keys (Int, String and Array of keys); see key.go for the key ordering and
// the order-preserving binary encoding used by the storage layer.
//
// This package imports nothing internal. Every other internal package may
// import it.
//
// Serialization uses canonical JSON: object keys sorted by UTF-16 code units,
// strings NFC normalized, no HTML escaping. Two content-equal records always
// serialize to identical bytes.
package record

// Package arraystream splits a JSON document whose top level is an array into
// its elements, reading the input as a stream.
//
// The package is organized into several sub-packages:
//
// - encoding/json: value grammar (producing tokens) and compact encoder
// - element: extraction of one array element from the front of a buffer
// - pump: the read loop feeding a bounded buffer and emitting elements
// - decompress: gzip, zstd, s2, snappy and lz4 input, with format detection
// - token: the tokens a parsed value is made of
//
// They are combined into a pipeline:
//
//	decompress -> buffer -> extract element -> encode one line per element
//
// Elements are written as soon as they are complete, so memory usage does
// not depend on the size of the array, only on the size of its biggest
// element.  An element that does not fit in the buffer limit is an error.
//
// The CLI utility is in the directory cmd/unarray. You can install it with:
//
//	go install github.com/arnodel/arraystream/cmd/unarray
package arraystream

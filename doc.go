/*

Vt is a deduplicating content-addressed store for data streams of
arbitrary size.

Vocabulary:

- hashcode: digest of a chunk tagged with its hash algorithm; written
  as algo:hex
- chunk: a run of bytes cut from a stream by the chunker; the
  deduplication atom
- block: a reference to data; a hash block names a stored chunk, literal
  and RLE blocks carry their data, a sub block is a view into another
  block
- indirect block: a block whose data is a list of child block records;
  indirect blocks form the tree describing a whole stream
- leaf: a block of a tree that is not indirect
- span: the number of data bytes a block stands for
- transcription: the text form of a block, e.g. B{hash:sha1:...,span:N}
- data file: append-only file of chunk records, N.vtd, in a store's
  data directory
- index: persistent map from hashcode to the location of its record
- store: a data directory plus its index and config.json

Packages: serial (BS integers), hashcode, scan (boundary scanners),
blockify (chunking), block (the block model), datafile, index and store.

*/

package vt

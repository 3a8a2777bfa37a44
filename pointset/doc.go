// Package pointset holds dense row-major float32 point matrices and reads and
// writes them in the little-endian `.fbin` / `.u8bin` / `.i8bin` layouts
// (uint32 count, uint32 dimension, then count*dimension values).
//
// A PointSet owns its backing buffer. Readers borrow rows through At, which
// returns a capacity-clipped view so that an append on a row can never spill
// into the neighbouring point.
package pointset

// Package buffer implements growable, sparsely allocated GPU buffers.
//
// A [DynamicBuffer] owns one GPU backing, a first-fit block allocator over
// it, and descriptor slots for its shader views. Add reserves a range and
// stages its bytes through the upload manager; the returned [View] names
// the range by offset and size. When no free block fits, the buffer grows:
// a larger backing is created, the old contents are copied forward on the
// GPU timeline, the old backing is retired through the deletion manager,
// and fresh descriptor slots are assigned. Byte offsets survive growth;
// descriptor indices do not, and are re-published through the resize
// callback.
//
// [SortedUintBuffer] mirrors an ascending, duplicate-free uint32 sequence
// on the GPU, uploading the shifted suffix on every insert and remove.
//
// # Views and lifetime
//
// Views hold a generational registry handle, never a pointer to their
// buffer. Using a view after its range was removed, or after its buffer
// was destroyed, fails with ErrStaleView. Using it with another buffer
// fails with ErrForeignView.
//
// # Thread Safety
//
// Buffers are mutated from the single submission goroutine and carry no
// locks. The managers they use (uploads, deletion, descriptors, registry)
// are safe for concurrent use.
//
// # Debug builds
//
// Building with -tags gpuresdebug turns absorbed misuse (double remove)
// into panics and validates the allocator after every mutation.
package buffer

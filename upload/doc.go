// Package upload batches CPU→GPU writes and GPU-side buffer copies.
//
// Every queued operation is recorded, in call order, into a single
// command list at Flush. Write payloads are packed into one staging
// buffer, written with a single queue write, and copied to their
// destinations by the command list, so a write queued after a copy is
// also executed after it. Work submitted after Flush observes every
// queued operation; work already in flight never does, because staging
// buffers are only reused after the deletion latency has elapsed.
//
// Growth of a dynamic buffer uses QueueCopyAndDiscard: the old backing is
// copied forward into the new one and handed to the deletion manager once
// the command list that reads it has been submitted.
//
// # Thread Safety
//
// Manager is safe for concurrent use. A single mutex guards the queue;
// Flush holds it while packing and submitting.
package upload

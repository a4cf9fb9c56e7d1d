package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/docvault/core"
)

// Key prefixes for different data types
const (
	documentPrefix = "docrec"
	chunkPrefix    = "chkrec"
	jobPrefix      = "jobrec"
	jobDocPrefix   = "jobdoc"
	jobIDSeq       = "jobrecseq"
	execPrefix     = "wfexec"
	execDocPrefix  = "wfdoc"
	execWidPrefix  = "wfwid"
	execIDSeq      = "wfexecseq"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:documentID:index, fixed width and BigEndian so that
// iterating a document's prefix yields chunks in index order.
func makeChunkKey(docID core.ID, index int) []byte {
	buf := makePartialChunkKey(docID)
	idx := make([]byte, 4)
	binary.BigEndian.PutUint32(idx, uint32(index))
	return append(buf, idx...)
}

// makePartialChunkKey generates the per-document chunk prefix.
func makePartialChunkKey(docID core.ID) []byte {
	prefix := chunkPrefix + ":"
	buf := make([]byte, len(prefix)+8, len(prefix)+12)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makeJobKey generates a key for a processing job by ID.
func makeJobKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", jobPrefix, id))
}

// makeJobDocKey generates a composite key for the per-document job index.
// Format: prefix:documentID:stage:jobID. Job IDs come from a sequence,
// so within one (document, stage) prefix the highest key is the latest job.
func makeJobDocKey(docID core.ID, stage core.Stage, jobID core.ID) []byte {
	buf := makePartialJobDocKey(docID, stage)
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, uint64(jobID))
	return append(buf, id...)
}

// makePartialJobDocKey generates the (document, stage) job index prefix.
func makePartialJobDocKey(docID core.ID, stage core.Stage) []byte {
	prefix := jobDocPrefix + ":"
	buf := make([]byte, len(prefix)+9, len(prefix)+17)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	buf[offset+8] = byte(stage)
	return buf
}

// makeDocJobsPrefix generates the all-stages job index prefix for a document.
func makeDocJobsPrefix(docID core.ID) []byte {
	prefix := jobDocPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makeExecutionKey generates a key for a workflow execution by ID.
func makeExecutionKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", execPrefix, id))
}

// makeExecDocKey generates a composite key for the per-document execution
// index. Format: prefix:documentID:executionID. Execution IDs come from a
// sequence, so the highest key under a document is the latest execution.
func makeExecDocKey(docID, execID core.ID) []byte {
	buf := makePartialExecDocKey(docID)
	id := make([]byte, 8)
	binary.BigEndian.PutUint64(id, uint64(execID))
	return append(buf, id...)
}

// makePartialExecDocKey generates the per-document execution index prefix.
func makePartialExecDocKey(docID core.ID) []byte {
	prefix := execDocPrefix + ":"
	buf := make([]byte, len(prefix)+8, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makeExecWidKey generates a key for execution lookup by workflow identifier.
func makeExecWidKey(workflowID string) []byte {
	return []byte(execWidPrefix + ":" + workflowID)
}

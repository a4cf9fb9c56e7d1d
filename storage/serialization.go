// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"github.com/poiesic/docvault/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalJob serializes a ProcessingJob to bytes.
func MarshalJob(job *core.ProcessingJob) []byte {
	buf := make([]byte, core.ProcessingJobMUS.Size(*job))
	core.ProcessingJobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes a ProcessingJob from bytes.
func UnmarshalJob(data []byte) (*core.ProcessingJob, error) {
	job, _, err := core.ProcessingJobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarshalExecution serializes a WorkflowExecution to bytes.
func MarshalExecution(exec *core.WorkflowExecution) []byte {
	buf := make([]byte, core.WorkflowExecutionMUS.Size(*exec))
	core.WorkflowExecutionMUS.Marshal(*exec, buf)
	return buf
}

// UnmarshalExecution deserializes a WorkflowExecution from bytes.
func UnmarshalExecution(data []byte) (*core.WorkflowExecution, error) {
	exec, _, err := core.WorkflowExecutionMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &exec, nil
}

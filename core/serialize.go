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


package core

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Hand-written MUS serializers for the stored record types. Field order is
// part of the on-disk format: append new fields at the end only.

// Times are stored as Unix microseconds with a presence flag so that zero
// times (e.g. FinishedAt of a running job) round-trip exactly.

func marshalTime(t time.Time, bs []byte) int {
	if t.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n := ord.Bool.Marshal(true, bs)
	return n + varint.Int64.Marshal(t.UnixMicro(), bs[n:])
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	present, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !present {
		return time.Time{}, n, err
	}
	micros, n1, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return time.Time{}, n + n1, err
	}
	return time.UnixMicro(micros).UTC(), n + n1, nil
}

func sizeTime(t time.Time) int {
	if t.IsZero() {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + varint.Int64.Size(t.UnixMicro())
}

func marshalVector(v []float32, bs []byte) int {
	n := varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, fmt.Errorf("negative vector length %d", length)
	}
	if length == 0 {
		return nil, n, nil
	}
	v := make([]float32, length)
	for i := 0; i < length; i++ {
		f, n1, err := raw.Float32.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n1, err
		}
		v[i] = f
		n += n1
	}
	return v, n, nil
}

func sizeVector(v []float32) int {
	n := varint.Int.Size(len(v))
	for _, f := range v {
		n += raw.Float32.Size(f)
	}
	return n
}

func marshalMetadata(m map[string]string, bs []byte) int {
	n := varint.Int.Marshal(len(m), bs)
	for k, v := range m {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(v, bs[n:])
	}
	return n
}

func unmarshalMetadata(bs []byte) (map[string]string, int, error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 {
		return nil, n, fmt.Errorf("negative map length %d", length)
	}
	if length == 0 {
		return nil, n, nil
	}
	m := make(map[string]string, length)
	for i := 0; i < length; i++ {
		k, n1, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n1, err
		}
		n += n1
		v, n2, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return nil, n + n2, err
		}
		n += n2
		m[k] = v
	}
	return m, n, nil
}

func sizeMetadata(m map[string]string) int {
	n := varint.Int.Size(len(m))
	for k, v := range m {
		n += ord.String.Size(k) + ord.String.Size(v)
	}
	return n
}

type idMUS struct{}

// IDMUS serializes IDs as varint-encoded uint64.
var IDMUS = idMUS{}

func (idMUS) Marshal(v ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

type documentMUS struct{}

// DocumentMUS serializes Document values.
var DocumentMUS = documentMUS{}

func (documentMUS) Marshal(v Document, bs []byte) int {
	n := IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.ExternalId, bs[n:])
	n += ord.String.Marshal(v.Filename, bs[n:])
	n += ord.String.Marshal(v.Bucket, bs[n:])
	n += ord.String.Marshal(v.Key, bs[n:])
	n += varint.Int64.Marshal(v.SizeBytes, bs[n:])
	n += ord.String.Marshal(v.ContentType, bs[n:])
	n += varint.Int.Marshal(int(v.UploadStatus), bs[n:])
	n += varint.Int.Marshal(int(v.ProcessingStatus), bs[n:])
	n += varint.Int.Marshal(v.ChunkCount, bs[n:])
	n += marshalMetadata(v.Metadata, bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (Document, int, error) {
	var (
		v   Document
		n   int
		err error
	)
	read := func(f func([]byte) (int, error)) {
		if err != nil {
			return
		}
		var n1 int
		n1, err = f(bs[n:])
		n += n1
	}
	read(func(b []byte) (int, error) { var n1 int; v.Id, n1, err = IDMUS.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.ExternalId, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Filename, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Bucket, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Key, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.SizeBytes, n1, err = varint.Int64.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.ContentType, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) {
		s, n1, err := varint.Int.Unmarshal(b)
		v.UploadStatus = UploadStatus(s)
		return n1, err
	})
	read(func(b []byte) (int, error) {
		s, n1, err := varint.Int.Unmarshal(b)
		v.ProcessingStatus = ProcessingStatus(s)
		return n1, err
	})
	read(func(b []byte) (int, error) { var n1 int; v.ChunkCount, n1, err = varint.Int.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Metadata, n1, err = unmarshalMetadata(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.ErrorMessage, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.CreatedAt, n1, err = unmarshalTime(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.UpdatedAt, n1, err = unmarshalTime(b); return n1, err })
	return v, n, err
}

func (documentMUS) Size(v Document) int {
	return IDMUS.Size(v.Id) +
		ord.String.Size(v.ExternalId) +
		ord.String.Size(v.Filename) +
		ord.String.Size(v.Bucket) +
		ord.String.Size(v.Key) +
		varint.Int64.Size(v.SizeBytes) +
		ord.String.Size(v.ContentType) +
		varint.Int.Size(int(v.UploadStatus)) +
		varint.Int.Size(int(v.ProcessingStatus)) +
		varint.Int.Size(v.ChunkCount) +
		sizeMetadata(v.Metadata) +
		ord.String.Size(v.ErrorMessage) +
		sizeTime(v.CreatedAt) +
		sizeTime(v.UpdatedAt)
}

type chunkMUS struct{}

// ChunkMUS serializes Chunk values.
var ChunkMUS = chunkMUS{}

func (chunkMUS) Marshal(v Chunk, bs []byte) int {
	n := IDMUS.Marshal(v.DocumentId, bs)
	n += varint.Int.Marshal(v.Index, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Int.Marshal(v.TokenCount, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += marshalMetadata(v.Metadata, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (Chunk, int, error) {
	var (
		v   Chunk
		n   int
		err error
	)
	read := func(f func([]byte) (int, error)) {
		if err != nil {
			return
		}
		var n1 int
		n1, err = f(bs[n:])
		n += n1
	}
	read(func(b []byte) (int, error) { var n1 int; v.DocumentId, n1, err = IDMUS.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Index, n1, err = varint.Int.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Text, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.TokenCount, n1, err = varint.Int.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Vector, n1, err = unmarshalVector(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Metadata, n1, err = unmarshalMetadata(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.CreatedAt, n1, err = unmarshalTime(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.UpdatedAt, n1, err = unmarshalTime(b); return n1, err })
	return v, n, err
}

func (chunkMUS) Size(v Chunk) int {
	return IDMUS.Size(v.DocumentId) +
		varint.Int.Size(v.Index) +
		ord.String.Size(v.Text) +
		varint.Int.Size(v.TokenCount) +
		sizeVector(v.Vector) +
		sizeMetadata(v.Metadata) +
		sizeTime(v.CreatedAt) +
		sizeTime(v.UpdatedAt)
}

type processingJobMUS struct{}

// ProcessingJobMUS serializes ProcessingJob values.
var ProcessingJobMUS = processingJobMUS{}

func (processingJobMUS) Marshal(v ProcessingJob, bs []byte) int {
	n := IDMUS.Marshal(v.Id, bs)
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += varint.Int.Marshal(int(v.Stage), bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += varint.Int.Marshal(v.RetryCount, bs[n:])
	n += varint.Int.Marshal(v.MaxRetries, bs[n:])
	n += ord.String.Marshal(v.Result, bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += marshalTime(v.StartedAt, bs[n:])
	n += marshalTime(v.FinishedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (processingJobMUS) Unmarshal(bs []byte) (ProcessingJob, int, error) {
	var (
		v   ProcessingJob
		n   int
		err error
	)
	read := func(f func([]byte) (int, error)) {
		if err != nil {
			return
		}
		var n1 int
		n1, err = f(bs[n:])
		n += n1
	}
	read(func(b []byte) (int, error) { var n1 int; v.Id, n1, err = IDMUS.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.DocumentId, n1, err = IDMUS.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) {
		s, n1, err := varint.Int.Unmarshal(b)
		v.Stage = Stage(s)
		return n1, err
	})
	read(func(b []byte) (int, error) {
		s, n1, err := varint.Int.Unmarshal(b)
		v.Status = JobStatus(s)
		return n1, err
	})
	read(func(b []byte) (int, error) { var n1 int; v.RetryCount, n1, err = varint.Int.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.MaxRetries, n1, err = varint.Int.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Result, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.ErrorMessage, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.StartedAt, n1, err = unmarshalTime(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.FinishedAt, n1, err = unmarshalTime(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.UpdatedAt, n1, err = unmarshalTime(b); return n1, err })
	return v, n, err
}

func (processingJobMUS) Size(v ProcessingJob) int {
	return IDMUS.Size(v.Id) +
		IDMUS.Size(v.DocumentId) +
		varint.Int.Size(int(v.Stage)) +
		varint.Int.Size(int(v.Status)) +
		varint.Int.Size(v.RetryCount) +
		varint.Int.Size(v.MaxRetries) +
		ord.String.Size(v.Result) +
		ord.String.Size(v.ErrorMessage) +
		sizeTime(v.StartedAt) +
		sizeTime(v.FinishedAt) +
		sizeTime(v.UpdatedAt)
}

type workflowExecutionMUS struct{}

// WorkflowExecutionMUS serializes WorkflowExecution values.
var WorkflowExecutionMUS = workflowExecutionMUS{}

func (workflowExecutionMUS) Marshal(v WorkflowExecution, bs []byte) int {
	n := IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.WorkflowId, bs[n:])
	n += ord.String.Marshal(v.RunId, bs[n:])
	n += ord.String.Marshal(v.Type, bs[n:])
	n += IDMUS.Marshal(v.DocumentId, bs[n:])
	n += varint.Int.Marshal(int(v.Status), bs[n:])
	n += varint.Int.Marshal(int(v.CurrentStage), bs[n:])
	n += ord.Bool.Marshal(v.CancelRequested, bs[n:])
	n += ord.String.Marshal(v.Result, bs[n:])
	n += ord.String.Marshal(v.ErrorMessage, bs[n:])
	n += marshalTime(v.StartedAt, bs[n:])
	n += marshalTime(v.FinishedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return n
}

func (workflowExecutionMUS) Unmarshal(bs []byte) (WorkflowExecution, int, error) {
	var (
		v   WorkflowExecution
		n   int
		err error
	)
	read := func(f func([]byte) (int, error)) {
		if err != nil {
			return
		}
		var n1 int
		n1, err = f(bs[n:])
		n += n1
	}
	read(func(b []byte) (int, error) { var n1 int; v.Id, n1, err = IDMUS.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.WorkflowId, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.RunId, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Type, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.DocumentId, n1, err = IDMUS.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) {
		s, n1, err := varint.Int.Unmarshal(b)
		v.Status = ExecutionStatus(s)
		return n1, err
	})
	read(func(b []byte) (int, error) {
		s, n1, err := varint.Int.Unmarshal(b)
		v.CurrentStage = Stage(s)
		return n1, err
	})
	read(func(b []byte) (int, error) { var n1 int; v.CancelRequested, n1, err = ord.Bool.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.Result, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.ErrorMessage, n1, err = ord.String.Unmarshal(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.StartedAt, n1, err = unmarshalTime(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.FinishedAt, n1, err = unmarshalTime(b); return n1, err })
	read(func(b []byte) (int, error) { var n1 int; v.UpdatedAt, n1, err = unmarshalTime(b); return n1, err })
	return v, n, err
}

func (workflowExecutionMUS) Size(v WorkflowExecution) int {
	return IDMUS.Size(v.Id) +
		ord.String.Size(v.WorkflowId) +
		ord.String.Size(v.RunId) +
		ord.String.Size(v.Type) +
		IDMUS.Size(v.DocumentId) +
		varint.Int.Size(int(v.Status)) +
		varint.Int.Size(int(v.CurrentStage)) +
		ord.Bool.Size(v.CancelRequested) +
		ord.String.Size(v.Result) +
		ord.String.Size(v.ErrorMessage) +
		sizeTime(v.StartedAt) +
		sizeTime(v.FinishedAt) +
		sizeTime(v.UpdatedAt)
}

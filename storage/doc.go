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


// Package storage defines the repository contracts for docvault.
//
// The interfaces decouple the pipeline and search layers from the
// storage engine. The production implementation lives in storage/badger;
// tests use its in-memory mode through the same interfaces.
//
// # Constructor Return Type Pattern
//
// Public constructors in implementation packages return these interfaces
// rather than concrete types:
//
//	docs, err := badger.NewDocumentStore(backend)  // storage.DocumentStore
//
// so consumers never couple to BadgerDB specifics and alternative
// backends can be added without touching callers.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Every method
// takes a context.Context for cancellation and timeouts.
package storage

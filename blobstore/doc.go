// Package blobstore mirrors pipeline artifacts (partition files, routing
// indexes, search and route files, reports) to a storage backend.
//
// BlobStore is the interface all backends implement. Implementations must be
// safe for concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: a directory on the local file system
//   - MemoryStore: in-process, for tests
//   - s3.Store: Amazon S3 with multipart uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// Mirror uploads a set of local files and Fetch downloads one back; both go
// through the IO limiter of a resource.Controller.
package blobstore

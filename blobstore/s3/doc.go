// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket", s3.WithPrefix("experiments/"), s3.WithRegion("us-east-1"))
//	names, err := blobstore.Mirror(ctx, store, files, blobstore.MirrorOptions{})
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads for large search files
//   - Automatic pagination for listing
//   - Configurable prefix per experiment
package s3

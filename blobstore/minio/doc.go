// Package minio provides a BlobStore implementation using the MinIO client.
//
// It works with MinIO and other S3-compatible systems (Ceph, SeaweedFS,
// Garage) without pulling in the AWS SDK configuration chain.
//
//	store, err := minio.New(ctx, minio.Endpoint{
//	    Address:   "localhost:9000",
//	    AccessKey: "minioadmin",
//	    SecretKey: "minioadmin",
//	}, "experiments", "run-42/")
package minio

// Package s3 provides an S3 implementation of the blobstore.Store interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("pools/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	err = pool.Save(ctx, store, "users.snap")
//
// # Features
//
//   - Multipart uploads for large snapshots
//   - CRC32C integrity validation on upload
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3

// Package s3 stores steparena segments in Amazon S3 with aws-sdk-go-v2.
//
//	store, err := s3.New(ctx, "steparena-runs",
//	    s3.WithPrefix("prod/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	comp, err := steparena.New(prog, store)
//
// Input segments are read with ranged GETs. Create sends If-None-Match so
// two processes cannot both create the same work segment. Uploads carry a
// CRC32C checksum, and large Puts go through the multipart upload manager.
//
// An object cannot be patched, so Blob.WriteAt downloads, patches and
// re-uploads the whole segment. A CachingStore in front of the input keeps
// repeated window reads off the network.
package s3

// Package minio stores steparena segments in a MinIO bucket, or any other
// S3-compatible server the minio-go client can reach.
//
//	client, err := miniogo.New("localhost:9000", &miniogo.Options{
//	    Creds: credentials.NewEnvMinio(),
//	})
//	if err != nil { ... }
//	store := minio.NewStore(client, "steparena", "runs/")
//	comp, err := steparena.New(prog, store)
//
// Objects cannot be patched in place. An open Blob keeps the object in
// memory, applies WriteAt to that copy and uploads the whole object again,
// so each work flush costs one PUT of the full segment. Keep work segments
// small, or prefer a local store for programs that flush often.
package minio

// Package archive stores copies of Gold files outside the working library.
//
// Two backends exist: a local directory tree and an S3-compatible bucket
// (AWS S3, MinIO, Garage). Keys are the Gold file's path relative to the gold
// root so the archive mirrors the library layout.
package archive

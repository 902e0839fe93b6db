// Package importer runs bulk YAML imports of persons and locations.
//
// An import stages the uploaded file in object storage, records an
// IN_PROGRESS job, creates every record inside one database transaction and
// then promotes the staged file. Any failure rolls back the transaction and
// discards the staged file, leaving the job FAILED without a retained key.
// The terminal event is broadcast only after the job row is committed.
package importer

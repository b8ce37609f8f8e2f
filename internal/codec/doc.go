// Package codec converts domain alarm types to and from protobuf
// structpb values.
//
// The same representation is used by the JSON file store (through protojson)
// and by the gRPC control API, so a record written by one can be read by the
// other.
package codec

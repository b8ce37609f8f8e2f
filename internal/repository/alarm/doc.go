// Package alarm implements persistence for alarm records.
//
// Repository is the narrow Store boundary the engine depends on. The
// FileRepository keeps all records in one JSON file, SQLRepository keeps them
// in SQLite or PostgreSQL and RedisRepository keeps them in a Redis hash.
// Open picks one from the store configuration.
package alarm

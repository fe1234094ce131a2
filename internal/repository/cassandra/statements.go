package cassandra

import (
	"fmt"
	"regexp"
)

// timeBucket is the single partition of the creation-time index. All resources
// share it, which keeps List ordered at the cost of one wide partition.
const timeBucket = 0

var identifier = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// statements holds the CQL for one keyspace. Keyspace names cannot be bound as
// parameters, so they are validated and formatted in once.
type statements struct {
	createKeyspace   string
	createTable      string
	createIndexTable string

	insert      string
	insertIndex string
	deleteOne   string
	selectOne   string
	selectState string
	update      string
	softDelete  string
	count       string
	pageIDs     string
	selectMany  string
}

func newStatements(keyspace string, replicationFactor int) (statements, error) {
	if !identifier.MatchString(keyspace) {
		return statements{}, fmt.Errorf("invalid keyspace name %q", keyspace)
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	const columns = "id, name, kind, status, attributes, version, created_at, updated_at"
	t := keyspace + ".resources"
	idx := keyspace + ".resources_by_time"

	return statements{
		createKeyspace: fmt.Sprintf(
			`CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}`,
			keyspace, replicationFactor),
		createTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	name text,
	kind text,
	status text,
	attributes map<text, text>,
	version bigint,
	created_at timestamp,
	updated_at timestamp
)`, t),
		createIndexTable: fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	bucket int,
	created_at timestamp,
	id text,
	PRIMARY KEY ((bucket), created_at, id)
) WITH CLUSTERING ORDER BY (created_at ASC, id ASC)`, idx),

		insert:      fmt.Sprintf(`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`, t, columns),
		insertIndex: fmt.Sprintf(`INSERT INTO %s (bucket, created_at, id) VALUES (?, ?, ?)`, idx),
		deleteOne:   fmt.Sprintf(`DELETE FROM %s WHERE id = ? IF EXISTS`, t),
		selectOne:   fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, columns, t),
		selectState: fmt.Sprintf(`SELECT status, version, created_at FROM %s WHERE id = ?`, t),
		update: fmt.Sprintf(
			`UPDATE %s SET name = ?, kind = ?, status = ?, attributes = ?, version = ?, updated_at = ? WHERE id = ? IF status = 'active' AND version = ?`, t),
		softDelete: fmt.Sprintf(
			`UPDATE %s SET status = 'deleted', version = ?, updated_at = ? WHERE id = ? IF status = 'active' AND version = ?`, t),
		count:      fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE bucket = ?`, idx),
		pageIDs:    fmt.Sprintf(`SELECT id FROM %s WHERE bucket = ? LIMIT ?`, idx),
		selectMany: fmt.Sprintf(`SELECT %s FROM %s WHERE id IN ?`, columns, t),
	}, nil
}

// schema returns the DDL in the order it must run.
func (s statements) schema() []string {
	return []string{s.createKeyspace, s.createTable, s.createIndexTable}
}

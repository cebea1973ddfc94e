package rules

import "context"

// DataSourceConnection executes read-only queries against an external data
// source. Rows come back as field -> string value maps. Query failures
// (auth, network, malformed query) surface as errors and fail only the
// calling rule's evaluation for the current cycle.
type DataSourceConnection interface {
	CheckForData(ctx context.Context, model, view string, filters map[string]string, fields []string) ([]map[string]string, error)
}

// ConnectionFactory maps a data source descriptor to a concrete connection.
// Unknown type tags return errors.ErrUnsupportedDataSource.
type ConnectionFactory interface {
	CreateDataSource(spec DataSourceJobSpec) (DataSourceConnection, error)
}

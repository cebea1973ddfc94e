// Package source provides concrete data source connections for rule
// evaluation.
package source

import (
	"time"

	"github.com/vigilhq/vigil/errors"
	"github.com/vigilhq/vigil/internal/httpclient"
	"github.com/vigilhq/vigil/rules"
)

const defaultQueryTimeout = 60 * time.Second

// Factory maps data source descriptors to concrete connections.
// The zero value is not usable; construct with NewFactory.
type Factory struct {
	client *httpclient.Client
}

// NewFactory creates the default connection factory
func NewFactory() *Factory {
	return &Factory{
		client: httpclient.New(defaultQueryTimeout),
	}
}

// CreateDataSource returns a connection for the descriptor's type tag
func (f *Factory) CreateDataSource(spec rules.DataSourceJobSpec) (rules.DataSourceConnection, error) {
	switch spec.Type {
	case rules.DataSourceLooker:
		return NewLookerConnection(spec.URL, spec.Username, spec.Password, f.client), nil
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedDataSource, "%q", spec.Type)
	}
}

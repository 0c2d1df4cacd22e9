// Package incidents provides the stores incident reports are read from when risk is rebuilt.
package incidents

import (
	"context"
	"errors"

	"github.com/baronsmv/navi/risk"
)

// ErrNotFound is returned when an incident id is unknown.
var ErrNotFound = errors.New("incident not found")

// Source yields the incidents a risk rebuild starts from.
type Source interface {
	List(ctx context.Context) ([]risk.Incident, error)
}

// Writer stores incident records.
type Writer interface {
	Put(ctx context.Context, incidents ...risk.Incident) error
}

// Static is a fixed list of incidents, used by one-shot commands and tests.
type Static []risk.Incident

// List returns a copy of the list.
func (s Static) List(ctx context.Context) ([]risk.Incident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]risk.Incident, len(s))
	copy(out, s)
	return out, nil
}

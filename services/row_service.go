package services

import (
	"context"

	"github.com/mbocsi/radiofleet/store"
)

// DefaultRowLimit caps a RowQuery that names no limit
const DefaultRowLimit = 500

// RowServiceImpl implements RowService
type RowServiceImpl struct {
	log store.Log
}

// NewRowService creates a new row service
func NewRowService(log store.Log) RowService {
	return &RowServiceImpl{
		log: log,
	}
}

// ListRows returns the most recent matching rows, oldest first
func (rs *RowServiceImpl) ListRows(ctx context.Context, q RowQuery) (*RowPage, error) {
	if rs.log == nil {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "No row log configured",
		}
	}
	if q.Limit < 0 {
		return nil, invalidInput("Limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = DefaultRowLimit
	}

	rows, err := rs.log.Query(ctx, store.Filter{
		Session:  q.Session,
		DeviceID: q.DeviceID,
		Sensor:   q.Sensor,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, serviceError("Failed to query rows", err)
	}
	total, err := rs.log.RowCount(ctx)
	if err != nil {
		return nil, serviceError("Failed to count rows", err)
	}

	return &RowPage{Rows: rows, Total: total}, nil
}

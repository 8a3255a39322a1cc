package services

import (
	"github.com/mbocsi/radiofleet/radio"
)

// TransportServiceImpl implements TransportService
type TransportServiceImpl struct {
	transport radio.Transport
}

// NewTransportService creates a new transport service
func NewTransportService(transport radio.Transport) TransportService {
	return &TransportServiceImpl{
		transport: transport,
	}
}

// GetTransport returns the radio transport's metadata
func (ts *TransportServiceImpl) GetTransport() (*TransportInfo, error) {
	if ts.transport == nil {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "No transport configured",
		}
	}

	info := convertTransportMeta(ts.transport.Meta())
	return &info, nil
}

package driven

import (
	"context"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// DeviceClient defines the driven port for the device-management API.
type DeviceClient interface {
	// FetchAccessToken performs a client-credentials exchange. Failure is a
	// *model.AuthError.
	FetchAccessToken(ctx context.Context, clientID, clientSecret string) (string, error)

	// ListOrganizations returns every organization visible to the token.
	// Failure is a *model.UpstreamError.
	ListOrganizations(ctx context.Context, token string) ([]model.Organization, error)

	// ListDevices returns the devices of one organization with warranty data.
	ListDevices(ctx context.Context, token, organizationID string) ([]model.Device, error)
}

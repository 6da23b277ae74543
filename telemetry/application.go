// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry // import "github.com/spyglasshq/spyglass/telemetry"

// ApplicationKey identifies a telemetry source: the OTLP resource's
// service.name plus service.instance.id. Sources that omit an instance
// id use the service name as the instance id.
type ApplicationKey struct {
	Name       string
	InstanceID string
}

// Application is a known telemetry source. Applications are created
// lazily on the first batch referencing their identity and live for
// the process lifetime.
type Application struct {
	Name       string
	InstanceID string

	// UninstrumentedPeer marks a synthetic application inferred from
	// another application's peer.service attribute rather than from
	// telemetry it reported itself.
	UninstrumentedPeer bool
}

// Key returns the application's identity.
func (a *Application) Key() ApplicationKey {
	return ApplicationKey{Name: a.Name, InstanceID: a.InstanceID}
}

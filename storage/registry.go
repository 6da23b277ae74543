// Copyright The Spyglass Authors
// SPDX-License-Identifier: Apache-2.0

package storage // import "github.com/spyglasshq/spyglass/storage"

import (
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spyglasshq/spyglass/telemetry"
)

// ApplicationView is the registry snapshot entry handed to the UI.
// DisplayName disambiguates multiple instances sharing a service name.
type ApplicationView struct {
	telemetry.Application
	DisplayName string
}

// applicationRegistry tracks known telemetry sources. Entries are
// created lazily on first reference and never removed; the map is
// bounded only by the process lifetime. The registry owns its lock so
// cross-store lookups stay atomic.
type applicationRegistry struct {
	logger *zap.Logger

	mu   sync.Mutex
	apps map[telemetry.ApplicationKey]*telemetry.Application
}

func newApplicationRegistry(logger *zap.Logger) *applicationRegistry {
	return &applicationRegistry{
		logger: logger,
		apps:   make(map[telemetry.ApplicationKey]*telemetry.Application),
	}
}

// getOrAdd returns the application for key, creating it when unknown.
// created is true only on first sight of the identity; callers fire
// the new-application event exactly when it is set. Self-reported
// telemetry upgrades an application previously inferred as an
// uninstrumented peer.
func (r *applicationRegistry) getOrAdd(key telemetry.ApplicationKey, uninstrumentedPeer bool) (app *telemetry.Application, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if app, ok := r.apps[key]; ok {
		if app.UninstrumentedPeer && !uninstrumentedPeer {
			app.UninstrumentedPeer = false
		}
		return app, false
	}

	app = &telemetry.Application{
		Name:               key.Name,
		InstanceID:         key.InstanceID,
		UninstrumentedPeer: uninstrumentedPeer,
	}
	r.apps[key] = app
	r.logger.Debug("application registered",
		zap.String("service_name", key.Name),
		zap.String("instance_id", key.InstanceID),
		zap.Bool("uninstrumented_peer", uninstrumentedPeer))
	return app, true
}

// snapshot returns all applications ordered by name then instance id,
// with display names computed: the instance id is appended only when
// several instances share a service name.
func (r *applicationRegistry) snapshot() []ApplicationView {
	r.mu.Lock()
	byName := make(map[string]int, len(r.apps))
	views := make([]ApplicationView, 0, len(r.apps))
	for _, app := range r.apps {
		byName[app.Name]++
		views = append(views, ApplicationView{Application: *app})
	}
	r.mu.Unlock()

	for i := range views {
		views[i].DisplayName = displayName(views[i].Application, byName[views[i].Name] > 1)
	}
	sortApplicationViews(views)
	return views
}

func displayName(app telemetry.Application, ambiguous bool) string {
	if !ambiguous || app.InstanceID == app.Name {
		return app.Name
	}
	id := app.InstanceID
	// Long generated instance ids are shortened to a recognizable tail.
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return app.Name + "-" + id
}

func sortApplicationViews(views []ApplicationView) {
	slices.SortFunc(views, func(a, b ApplicationView) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.InstanceID, b.InstanceID)
	})
}

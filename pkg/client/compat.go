package client

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/morezero/callables-client/pkg/descriptor"
)

// SupportedAPIRange is the discovery document versions this client speaks.
const SupportedAPIRange = "^1"

// checkCompatibility gates the discovery document on its declared API
// version. Documents that carry no version pass — older servers never set
// one.
func checkCompatibility(doc *descriptor.Document) error {
	if doc.APIVersion == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(SupportedAPIRange)
	if err != nil {
		return fmt.Errorf("bad supported range %q: %w", SupportedAPIRange, err)
	}
	version, err := semver.NewVersion(doc.APIVersion)
	if err != nil {
		return &DiscoveryError{Message: fmt.Sprintf("unparseable apiVersion %q", doc.APIVersion), Err: err}
	}
	if !constraint.Check(version) {
		return &DiscoveryError{Message: fmt.Sprintf("registry apiVersion %s outside supported range %s", doc.APIVersion, SupportedAPIRange)}
	}
	return nil
}

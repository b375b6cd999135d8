package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildManifestPath places deployed manifests under their deployment,
// keyed by deploy time so older manifests stay retrievable.
func BuildManifestPath(deploymentID string, deployedAt time.Time) (string, error) {
	if err := validatePathComponent(deploymentID, "deployment id"); err != nil {
		return "", err
	}
	ts := deployedAt.UTC()
	return path.Join(
		"deployments",
		deploymentID,
		fmt.Sprintf("manifest-%s.json", ts.Format("20060102T150405Z")),
	), nil
}

// BuildArchivePath places document exports under date partitions the
// way downstream parquet scanners expect.
func BuildArchivePath(deploymentID string, archivedAt time.Time) (string, error) {
	if err := validatePathComponent(deploymentID, "deployment id"); err != nil {
		return "", err
	}
	ts := archivedAt.UTC()
	return path.Join(
		ArchivePrefix,
		deploymentID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("documents-%d.parquet", ts.Unix()),
	), nil
}

// ArchivePrefix is the key prefix BuildArchivePath writes under.
const ArchivePrefix = "archives"

// DeploymentFromArchivePath extracts the deployment ID from a key
// produced by BuildArchivePath.
func DeploymentFromArchivePath(key string) (string, bool) {
	parts := strings.Split(path.Clean(key), "/")
	if len(parts) < 3 || parts[0] != ArchivePrefix {
		return "", false
	}
	if !pathComponentPattern.MatchString(parts[1]) {
		return "", false
	}
	return parts[1], true
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

package automation

import (
	"fmt"
	"strings"

	goversion "github.com/hashicorp/go-version"

	"github.com/cuemby/opsmgr/pkg/types"
)

// previousMajorRelease maps a major version to the last feature release
// of the major before it
var previousMajorRelease = map[int]string{
	3: "2.6",
	4: "3.6",
	5: "4.4",
	6: "5.0",
	7: "6.0",
	8: "7.0",
}

// EnterpriseVersion returns the catalog name of the enterprise build of v
func EnterpriseVersion(v string) string {
	if strings.HasSuffix(v, types.EnterpriseSuffix) {
		return v
	}
	return v + types.EnterpriseSuffix
}

// ParseVersion parses a MongoDB version, accepting the enterprise suffix
func ParseVersion(v string) (*goversion.Version, error) {
	parsed, err := goversion.NewVersion(strings.TrimSuffix(v, types.EnterpriseSuffix))
	if err != nil {
		return nil, fmt.Errorf("invalid MongoDB version %q: %w", v, err)
	}
	return parsed, nil
}

// featureRelease truncates v to major.minor
func featureRelease(v *goversion.Version) *goversion.Version {
	seg := v.Segments()
	return goversion.Must(goversion.NewVersion(fmt.Sprintf("%d.%d", seg[0], seg[1])))
}

// StagingFCV returns the feature compatibility version a cluster must run
// before its binaries move to target: the feature release preceding the
// major.minor of target
func StagingFCV(target string) (string, error) {
	v, err := ParseVersion(target)
	if err != nil {
		return "", err
	}
	seg := v.Segments()
	major, minor := seg[0], seg[1]

	if minor >= 2 {
		return fmt.Sprintf("%d.%d", major, minor-2), nil
	}
	prev, ok := previousMajorRelease[major]
	if !ok {
		return "", fmt.Errorf("no known release precedes %d.%d", major, minor)
	}
	return prev, nil
}

// needsStaging reports whether the feature compatibility version has to be
// pinned to staging before moving the binaries from installed to target
func needsStaging(installed, fcv, staging, target string) (bool, error) {
	targetV, err := ParseVersion(target)
	if err != nil {
		return false, err
	}
	stagingV, err := ParseVersion(staging)
	if err != nil {
		return false, err
	}

	if fcv != "" {
		fcvV, err := ParseVersion(fcv)
		if err != nil {
			return false, err
		}
		// More than one feature release behind the target
		if featureRelease(fcvV).LessThan(stagingV) {
			return true, nil
		}
	}

	if installed == "" {
		return false, nil
	}
	installedV, err := ParseVersion(installed)
	if err != nil {
		return false, err
	}
	return featureRelease(installedV).LessThan(featureRelease(targetV)), nil
}

// skippedRelease returns the feature release target requires the cluster
// to run first when installed is older than it, or "" when installed can
// move to target directly
func skippedRelease(installed, target string) (string, error) {
	installedV, err := ParseVersion(installed)
	if err != nil {
		return "", err
	}
	staging, err := StagingFCV(target)
	if err != nil {
		return "", err
	}
	stagingV, err := ParseVersion(staging)
	if err != nil {
		return "", err
	}
	if featureRelease(installedV).LessThan(stagingV) {
		return staging, nil
	}
	return "", nil
}

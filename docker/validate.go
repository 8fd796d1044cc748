package docker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	units "github.com/docker/go-units"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/validation"
)

func init() {
	tags := []struct {
		tag, message string
		fn           func(string) bool
	}{
		{"docker_image", "must be a valid image reference", isImageRef},
		{"port_spec", "must be a publish spec like [ip:]host:container[/proto]", isPortSpec},
		{"mem_size", "must be a size like 512m or 1g, or -1", isMemSize},
		{"restart_policy", "must be no, always, unless-stopped or on-failure[:max-retries]", isRestartPolicy},
	}
	for _, t := range tags {
		if err := validation.Register(t.tag, t.message, t.fn); err != nil {
			panic(fmt.Sprintf("docker: registering %s validation: %v", t.tag, err))
		}
	}
}

func isImageRef(s string) bool {
	_, err := reference.ParseNormalizedNamed(s)
	return err == nil
}

func isPortSpec(s string) bool {
	_, err := nat.ParsePortSpec(s)
	return err == nil
}

func isMemSize(s string) bool {
	if s == "-1" {
		return true
	}
	_, err := units.RAMInBytes(s)
	return err == nil
}

func isRestartPolicy(s string) bool {
	_, err := ParseRestartPolicy(s)
	return err == nil
}

// ParseRestartPolicy parses a --restart value ("on-failure:3") and checks it
// with the docker API rules.
func ParseRestartPolicy(s string) (container.RestartPolicy, error) {
	name, retries, hasRetries := strings.Cut(s, ":")
	policy := container.RestartPolicy{Name: container.RestartPolicyMode(name)}
	if hasRetries {
		n, err := strconv.Atoi(retries)
		if err != nil {
			return policy, fmt.Errorf("invalid max-retries %q: %w", retries, err)
		}
		policy.MaximumRetryCount = n
	}
	if err := container.ValidateRestartPolicy(policy); err != nil {
		return policy, err
	}
	return policy, nil
}

// ImageRef joins image and tag. An empty tag keeps a tag or digest already
// present in image and otherwise means "latest".
func ImageRef(image, tag string) (string, error) {
	named, err := reference.ParseNormalizedNamed(image)
	if err != nil {
		return "", apperrors.InvalidInput("image", err.Error())
	}
	_, tagged := named.(reference.Tagged)
	if tag != "" {
		if tagged {
			return "", apperrors.InvalidInput("tag", fmt.Sprintf("image %s already has a tag", image))
		}
		if _, err := reference.WithTag(reference.TrimNamed(named), tag); err != nil {
			return "", apperrors.InvalidInput("tag", err.Error())
		}
		return image + ":" + tag, nil
	}
	if tagged {
		return image, nil
	}
	if _, ok := named.(reference.Digested); ok {
		return image, nil
	}
	return image + ":latest", nil
}

func requireName(field, value string) error {
	return validation.New().Required(field, value).NoWhitespace(field, value).Validate()
}

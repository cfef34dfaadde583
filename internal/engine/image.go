package engine

import (
	"fmt"
	"strings"
)

// DefaultRegistry is used when docker_image carries no slash at all,
// matching worker.py's split_container_name_version default.
const DefaultRegistry = "registry.hub.docker.com/library"

// ImageRef is a parsed docker_image reference.
type ImageRef struct {
	Registry string
	Repo     string
	Tag      string
}

// String renders the reference back to a pullable image name.
func (r ImageRef) String() string {
	return fmt.Sprintf("%s/%s:%s", r.Registry, r.Repo, r.Tag)
}

// ParseImageRef splits a docker_image string into registry, repository
// and tag exactly the way worker.py's split_container_name_version does:
// rsplit("/", 1) to separate everything before the last slash (the
// registry, whatever it contains) from the final path segment, then
// split(":") on that final segment alone for the tag — so a port number
// in the registry host is never mistaken for a tag separator, and an
// image with no slash at all falls back to the default registry.
func ParseImageRef(image string) (ImageRef, error) {
	if strings.TrimSpace(image) == "" {
		return ImageRef{}, fmt.Errorf("empty docker_image reference")
	}

	registry := DefaultRegistry
	lastSegment := image
	if idx := strings.LastIndexByte(image, '/'); idx >= 0 {
		registry = image[:idx]
		lastSegment = image[idx+1:]
	}

	repo := lastSegment
	tag := "latest"
	if idx := strings.IndexByte(lastSegment, ':'); idx >= 0 {
		repo = lastSegment[:idx]
		tag = lastSegment[idx+1:]
		if tag == "" {
			return ImageRef{}, fmt.Errorf("docker_image %q has an empty tag", image)
		}
	}

	if repo == "" {
		return ImageRef{}, fmt.Errorf("docker_image %q has an empty repository", image)
	}

	return ImageRef{Registry: registry, Repo: repo, Tag: tag}, nil
}

package docker

import (
	"context"

	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/process"
	"github.com/kbukum/dockerkit/util"
	"github.com/kbukum/dockerkit/validation"
)

// ImageOptions describes a docker build.
type ImageOptions struct {
	Image string `yaml:"image" mapstructure:"image" validate:"required,docker_image"`
	Tag   string `yaml:"tag" mapstructure:"tag"`
	// Dir is the build context and the working directory of the build.
	// Defaults to the current directory.
	Dir        string            `yaml:"dir" mapstructure:"dir"`
	Dockerfile string            `yaml:"dockerfile" mapstructure:"dockerfile"`
	BuildArgs  map[string]string `yaml:"build_args" mapstructure:"build_args"`
	NoCache    bool              `yaml:"no_cache" mapstructure:"no_cache"`
}

// Args builds the docker build arguments. The context is always ".",
// resolved against Dir.
func (o ImageOptions) Args() ([]string, error) {
	if err := validation.Validate(o); err != nil {
		return nil, err
	}
	ref, err := ImageRef(o.Image, o.Tag)
	if err != nil {
		return nil, err
	}
	args := []string{"build", "-t", ref}
	if o.Dockerfile != "" {
		args = append(args, "-f", o.Dockerfile)
	}
	for _, k := range util.SortedKeys(o.BuildArgs) {
		args = append(args, "--build-arg", k+"="+o.BuildArgs[k])
	}
	if o.NoCache {
		args = append(args, "--no-cache")
	}
	return append(args, "."), nil
}

// BuildImage runs docker build in opts.Dir.
func (c *Client) BuildImage(ctx context.Context, opts ImageOptions, callOpts ...CallOption) (process.Outcome, error) {
	args, err := opts.Args()
	if err != nil {
		return nil, err
	}
	if opts.Dir != "" {
		callOpts = append(callOpts[:len(callOpts):len(callOpts)], WithDir(opts.Dir))
	}
	return c.Execute(ctx, args, callOpts...)
}

// PushImage runs docker push.
func (c *Client) PushImage(ctx context.Context, image string, opts ...CallOption) (process.Outcome, error) {
	if err := checkImage(image); err != nil {
		return nil, err
	}
	return c.Execute(ctx, []string{"push", image}, opts...)
}

// PullImage runs docker pull.
func (c *Client) PullImage(ctx context.Context, image string, opts ...CallOption) (process.Outcome, error) {
	if err := checkImage(image); err != nil {
		return nil, err
	}
	return c.Execute(ctx, []string{"pull", image}, opts...)
}

// SaveImage writes image to the tar archive at output.
func (c *Client) SaveImage(ctx context.Context, image, output string, opts ...CallOption) (process.Outcome, error) {
	if err := checkImage(image); err != nil {
		return nil, err
	}
	if err := requireName("output", output); err != nil {
		return nil, err
	}
	return c.Execute(ctx, []string{"save", "-o", output, image}, opts...)
}

// LoadImage loads images from the tar archive at input.
func (c *Client) LoadImage(ctx context.Context, input string, opts ...CallOption) (process.Outcome, error) {
	if err := requireName("input", input); err != nil {
		return nil, err
	}
	return c.Execute(ctx, []string{"load", "-i", input}, opts...)
}

// LoginOptions holds registry credentials.
type LoginOptions struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
	// Registry defaults to Docker Hub.
	Registry string
}

// Login runs docker login. The password goes through stdin, never argv.
func (c *Client) Login(ctx context.Context, lo LoginOptions, opts ...CallOption) (process.Outcome, error) {
	if err := validation.Validate(lo); err != nil {
		return nil, err
	}
	args := []string{"login", "-u", lo.Username, "--password-stdin"}
	if lo.Registry != "" {
		args = append(args, lo.Registry)
	}
	return c.Execute(ctx, args, append(opts[:len(opts):len(opts)], WithInputs(lo.Password))...)
}

func checkImage(image string) error {
	if image == "" {
		return apperrors.MissingField("image")
	}
	if !isImageRef(image) {
		return apperrors.InvalidInput("image", "must be a valid image reference")
	}
	return nil
}

package cli

import (
	"bufio"
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kbukum/dockerkit/docker"
	apperrors "github.com/kbukum/dockerkit/errors"
	"github.com/kbukum/dockerkit/process"
)

func newBuildCommand(a *app) *cobra.Command {
	var (
		opts      docker.ImageOptions
		buildArgs []string
	)
	cmd := &cobra.Command{
		Use:   "build [flags] [DIR]",
		Short: "Build an image",
		Long: `Build an image from DIR (default the current directory).

Examples:
  dockerkit build -t team/app:v1 .
  dockerkit build -t team/app --build-arg VERSION=1.0 --no-cache ./service`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Dir = args[0]
			}
			m, err := parseKeyValues("build-arg", buildArgs)
			if err != nil {
				return err
			}
			opts.BuildArgs = m
			out, err := a.client.BuildImage(cmd.Context(), opts, docker.WithSink(relay(cmd)))
			return finish(cmd.Context(), out, err)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.Image, "tag", "t", "", "image name, optionally with a tag (required)")
	f.StringVarP(&opts.Dockerfile, "file", "f", "", "Dockerfile path relative to DIR")
	f.StringArrayVar(&buildArgs, "build-arg", nil, "set a build-time variable (KEY=VALUE)")
	f.BoolVar(&opts.NoCache, "no-cache", false, "do not use the build cache")
	return cmd
}

type imageFunc func(*docker.Client, context.Context, string, ...docker.CallOption) (process.Outcome, error)

func newImageCommand(a *app, verb, short string, op imageFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " IMAGE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := op(a.client, cmd.Context(), args[0], docker.WithSink(relay(cmd)))
			return finish(cmd.Context(), out, err)
		},
	}
}

func newLoginCommand(a *app) *cobra.Command {
	var lo docker.LoginOptions
	cmd := &cobra.Command{
		Use:   "login -u USER [REGISTRY]",
		Short: "Log in to a registry",
		Long: `Log in to a registry. The password is read from the first line of stdin
and handed to docker on its stdin.

Example:
  echo "$TOKEN" | dockerkit login -u ci ghcr.io`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				lo.Registry = args[0]
			}
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			lo.Password = strings.TrimRight(line, "\r\n")
			if lo.Password == "" {
				if err != nil {
					return apperrors.MissingField("password").WithCause(err)
				}
				return apperrors.MissingField("password")
			}
			out, err := a.client.Login(cmd.Context(), lo, docker.WithSink(relay(cmd)))
			return finish(cmd.Context(), out, err)
		},
	}
	cmd.Flags().StringVarP(&lo.Username, "username", "u", "", "registry user (required)")
	return cmd
}

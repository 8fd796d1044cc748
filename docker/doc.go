// Package docker drives the docker command-line tool.
//
// Every operation assembles an argument vector and runs it through a
// process.Runner, so the same sink, streaming and verbose options apply to
// all of them. Lifecycle operations (run, start, logs, build, ...) return the
// runner's Outcome untouched: a non-zero exit is for the caller to judge.
// Queries (inspect, stats, ps, version) parse the output into typed values
// and map a non-zero exit onto NOT_FOUND, ALREADY_EXISTS,
// SERVICE_UNAVAILABLE or COMMAND_FAILED from stderr.
//
//	cli := docker.NewClient(docker.Config{})
//	web := cli.Container(docker.ContainerOptions{Name: "web", Image: "nginx"})
//	out, err := web.Run(ctx, docker.WithSink(sink))
//
// Option structs are validated with struct tags. The package registers the
// docker_image, port_spec, mem_size and restart_policy tags with the
// validation package.
package docker

// Package component defines the lifecycle contract shared by the long-lived
// parts of dockerkit (the docker client and the stats watcher) and an ordered
// registry that starts them in order and stops them in reverse.
package component

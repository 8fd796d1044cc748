// Package testutil provides a scripted stand-in for the docker binary so the
// docker and cli packages can be tested end to end without a daemon.
//
//	func TestStop(t *testing.T) {
//	    fake := testutil.NewFakeDocker(t)
//	    fake.Respond("", "Error: No such container: web\n", 1)
//	    client := docker.NewClient(docker.Config{Binary: fake.Binary()})
//	    ...
//	    assert.Equal(t, []string{"stop web"}, fake.Calls())
//	}
//
// The fake is configured through environment variables set with t.Setenv, so
// tests using it cannot run in parallel.
package testutil

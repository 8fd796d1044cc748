// Package validation checks option and configuration structs before any
// process is spawned.
//
// Struct tags are evaluated with go-playground/validator. Packages can add
// domain tags with Register (the docker package registers image, port and
// size checks):
//
//	type ContainerOptions struct {
//	    Name  string `validate:"required"`
//	    Image string `validate:"required,docker_image"`
//	}
//	err := validation.Validate(opts)
//
// The fluent Validator collects checks that do not fit a tag:
//
//	v := validation.New()
//	v.Required("name", name).OneOf("driver", driver, drivers)
//	err := v.Validate()
package validation

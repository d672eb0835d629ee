package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Provision().
// The node contains the raw YAML for this module's config section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup after
// instantiation: defaults, directories, service lookups.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their configuration.
// Called after Provision(). Validate must not have side effects.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that run background work. Called once
// every module is provisioned and the executor is running.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules that hold resources. Called in reverse
// start order, before the executor is closed.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Package config defines the memmesh-server configuration schema.
//
// Configuration is loaded through internal/infra/confloader with
// priority Env (MEMMESH_ prefix) > File (YAML) > Default. The package
// provides Default(), Verify() and Sanitize() plus conversion helpers
// that map the flat schema onto the component configurations of the
// federation packages.
package config

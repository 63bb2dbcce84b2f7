// Package web3 houses blockchain connectivity utilities: chain definitions
// loaded from YAML, the Client abstraction over an EVM node, and the Backend
// interface consumed by contract bindings. Concrete implementations live in
// the ethereum subpackage and are assembled by the provider registry.
package web3

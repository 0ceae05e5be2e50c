// Package domain defines the core federation domain models.
//
// It holds the types shared by every federation component:
//
//   - node.go: NodeDescriptor and the health state machine
//   - discovery.go: DiscoveryRecord and source ranking
//   - errors.go: structured domain errors with stable codes
//
// The types here carry no behavior beyond validation and state
// transitions; protocol logic lives in the component packages.
package domain

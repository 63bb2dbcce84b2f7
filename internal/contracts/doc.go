// Package contracts is the single source of truth for the remote contract
// surface: function ABIs of the cross-chain gateway, the group, permission and
// bucket hubs, the multi-message relay, Multicall3 and the marketplace, plus
// the Go mirrors of their tuple arguments.
package contracts

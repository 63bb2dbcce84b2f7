// Package crosschain prices, encodes, guards, batches and submits the
// multi-step cross-chain actions that back a marketplace listing.
//
// A submission flows through five stages: the fee calculator turns a relay
// fee quote and a callback gas budget into native value, the encoder turns a
// typed Action into an EncodedCall, the guard drops actions that are already
// satisfied on chain, the assembler packs the remainder into an ordered Batch,
// and a Submitter hands the batch to the multi-message relay, to Multicall3,
// or to the signer directly, waiting for exactly one confirmation.
//
// Nothing here holds state between submissions. Every call receives an
// explicit ExecutionContext naming the signer and the resolved contract
// addresses.
package crosschain

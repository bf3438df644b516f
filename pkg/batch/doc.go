// Package batch splits a list of file paths into part Downloads and submits
// them to DataGateway.
//
// DataGateway handles requests of at most 10,000 files well, so a long list is
// cut into contiguous parts of MaxPartSize paths. Only the last part may be
// shorter. Parts are named "<name>_part_<n>" with n counting from 1.
//
// Example usage:
//
//	sub := batch.NewSubmitter(gatewayClient, os.Stdout)
//	ids, err := sub.QueueAll(ctx, sessionID, file, batch.Options{
//		AccessMethod: "dls",
//		Email:        "someone@example.org",
//	})
//
// The submitter:
//   - Reads newline-delimited paths without holding more than one part in memory
//   - Submits each part as soon as it is full
//   - Reports paths the server could not find, without retrying them
//   - Stops at the first failed submission; earlier parts stay queued
package batch

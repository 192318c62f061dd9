// Package pagination harvests every page of a paginated listing endpoint.
//
// Page 1 is fetched first; its metadata fixes the page count for the run
// (ceil(totalFilteredListings / pageSize), at least 1). The remaining pages are
// fetched in batches of width min(2×C, remaining), where C is the capacity of
// the admission gate every fetch passes through. A batch is a barrier: no page
// of batch k+1 starts before every fetch of batch k has finished, retries
// included.
//
// Example usage:
//
//	orch := pagination.NewOrchestrator(pageFetcher, pagination.DefaultConfig())
//	result, err := orch.Run(ctx, "https://example.com/event/123/?quantity=2")
//
// The orchestrator:
//   - Fails the run only when page 1 does not succeed
//   - Counts later page failures without aborting
//   - Folds outcomes at batch barriers in completion order
//   - Publishes a ProgressEvent after every batch
//   - Returns the completed batches when the context is cancelled
package pagination
